package interfaces

import (
	"context"

	"github.com/secmon-lab/boardsync/pkg/domain/model"
)

// IdentityProvider supplies the display name stamped on update requests
type IdentityProvider interface {
	DisplayName(ctx context.Context) (string, error)
}

// Confirmer is the user-facing side of a status transition
type Confirmer interface {
	// ConfirmMove asks the user to approve the batch
	ConfirmMove(ctx context.Context, move model.PendingMove) (bool, error)
	// CollectMissingFields asks for values of the missing fields. ok is
	// false when the user cancels, which aborts the whole batch.
	CollectMissingFields(ctx context.Context, req model.MissingFieldsRequest) (values map[string]any, ok bool, err error)
}
