package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/repository/memory"
	"github.com/secmon-lab/boardsync/pkg/service/connection"
	"github.com/secmon-lab/boardsync/pkg/service/router"
	"github.com/secmon-lab/boardsync/pkg/utils/clock"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
)

// BoardUseCase keeps the local board in sync with the server. It owns
// the frame routing into the bucket store and exposes the pagination,
// load-all and reconcile operations.
type BoardUseCase struct {
	conn     *connection.Manager
	store    *memory.BucketStore
	router   *router.Router
	move     *MoveUseCase
	search   *SearchUseCase
	catalog  *config.Catalog
	clock    clock.Clock
	pageSize int

	mu  sync.Mutex
	ctx context.Context
	// refetching holds buckets with a re-fetch outstanding after an
	// integrity violation
	refetching map[types.Status]bool
}

func NewBoardUseCase(
	conn *connection.Manager,
	store *memory.BucketStore,
	move *MoveUseCase,
	search *SearchUseCase,
	catalog *config.Catalog,
	clk clock.Clock,
	pageSize int,
) *BoardUseCase {
	if pageSize <= 0 {
		pageSize = model.DefaultItemsPerPage
	}
	uc := &BoardUseCase{
		conn:     conn,
		store:    store,
		router:   router.New(),
		move:     move,
		search:   search,
		catalog:  catalog,
		clock:    clk,
		pageSize: pageSize,
		ctx:      context.Background(),

		refetching: make(map[types.Status]bool),
	}

	uc.registerHandlers()
	conn.OnFrame(uc.router.Handle)
	conn.SetHeartbeat(uc.heartbeat)
	store.OnIntegrityViolation(uc.onIntegrityViolation)
	return uc
}

func (uc *BoardUseCase) registerHandlers() {
	router.On(uc.router, types.MessagePreview, func(ctx context.Context, msg *model.PreviewMessage) error {
		// a new snapshot supersedes every outstanding re-fetch
		uc.mu.Lock()
		clear(uc.refetching)
		uc.mu.Unlock()
		return uc.store.ReplaceAll(ctx, msg.Data)
	})
	router.On(uc.router, types.MessageClients, func(ctx context.Context, msg *model.ClientsMessage) error {
		applied, err := uc.store.AppendPage(ctx, msg.Status, msg.Clients, msg.Total, msg.Page)
		if applied {
			uc.refetchDone(msg.Status)
		}
		return err
	})
	router.On(uc.router, types.MessageAllClientsForStatus, func(ctx context.Context, msg *model.AllClientsMessage) error {
		changed, err := uc.store.ReplaceFull(ctx, msg.Status, msg.Clients, msg.Total)
		if err == nil {
			uc.refetchDone(msg.Status)
		}
		if err == nil && !changed {
			logging.From(ctx).Debug("full bucket refresh unchanged", model.StatusKey, msg.Status)
		}
		return err
	})
	router.On(uc.router, types.MessageSearchResults, func(_ context.Context, msg *model.SearchResultsMessage) error {
		uc.search.Deliver(msg.Clients)
		return nil
	})
	router.On(uc.router, types.MessageStatusUpdated, uc.move.HandleAck)
	router.On(uc.router, types.MessageError, uc.move.HandleError)
	router.On(uc.router, types.MessagePong, func(ctx context.Context, _ *model.PongMessage) error {
		logging.From(ctx).Debug("pong received")
		return nil
	})
}

// Router exposes the frame router so callers can add handlers for
// message types the board does not consume
func (uc *BoardUseCase) Router() *router.Router {
	return uc.router
}

// Start connects with filter and waits for the first attempt. A failed
// first attempt is returned while reconnection continues in background.
func (uc *BoardUseCase) Start(ctx context.Context, filter model.FilterContext) error {
	uc.mu.Lock()
	uc.ctx = context.WithoutCancel(ctx)
	uc.mu.Unlock()

	return uc.conn.Connect(ctx, filter)
}

// Stop closes the connection. Cached buckets stay readable.
func (uc *BoardUseCase) Stop() {
	uc.search.Cancel()
	uc.conn.Close()
}

// SetFilter switches the board to another filter context. A different
// filter identity tears the connection down, clears every bucket and
// reconnects; the same identity is a no-op.
func (uc *BoardUseCase) SetFilter(ctx context.Context, filter model.FilterContext) error {
	current := uc.conn.Filter()
	if current.Key() == filter.Key() && uc.conn.State() != types.ConnectionStateDisconnected {
		return nil
	}

	logging.From(ctx).Info("filter changed, resetting board",
		"from", current.Key(), "to", filter.Key())
	uc.search.Cancel()
	uc.conn.Close()
	uc.store.Reset()
	return uc.Start(ctx, filter)
}

// Retry leaves the failed state and reconnects now
func (uc *BoardUseCase) Retry(ctx context.Context) error {
	return uc.conn.Retry(ctx)
}

// LoadMore requests the next page of status. It returns false when a
// page is already outstanding or the bucket has nothing more to load.
func (uc *BoardUseCase) LoadMore(ctx context.Context, status types.Status) (bool, error) {
	bucket := uc.catalog.BucketOf(status)
	page, ok := uc.store.BeginPage(bucket)
	if !ok {
		return false, nil
	}

	msg := model.NewFetchMore(uc.conn.Filter(), bucket, page, uc.pageSize, uc.clock.Now())
	if !uc.conn.Send(ctx, msg) {
		uc.store.CancelPage(bucket)
		return false, goerr.Wrap(ErrNotConnected, "failed to request page",
			goerr.V(model.StatusKey, bucket), goerr.V(model.PageKey, page))
	}
	return true, nil
}

// LoadAll requests the complete contents of the bucket of status
func (uc *BoardUseCase) LoadAll(ctx context.Context, status types.Status) error {
	bucket := uc.catalog.BucketOf(status)
	if !uc.conn.Send(ctx, model.NewFetchAllForStatus(uc.conn.Filter(), bucket, uc.clock.Now())) {
		return goerr.Wrap(ErrNotConnected, "failed to request full bucket", goerr.V(model.StatusKey, bucket))
	}
	return nil
}

// Reconcile re-fetches status from the server to restore ground truth
// after a failed move or an integrity violation. Fully loaded buckets
// are loaded in full again; others restart at page 1. An empty status
// re-fetches the whole preview.
func (uc *BoardUseCase) Reconcile(ctx context.Context, status types.Status) error {
	filter := uc.conn.Filter()
	now := uc.clock.Now()

	var msg any
	switch {
	case status.IsZero():
		msg = model.NewFetchPreview(filter, now)
	case uc.store.IsFullyLoaded(status):
		msg = model.NewFetchAllForStatus(filter, uc.catalog.BucketOf(status), now)
	default:
		bucket := uc.catalog.BucketOf(status)
		uc.store.CancelPage(bucket)
		msg = model.NewFetchMore(filter, bucket, 1, uc.pageSize, now)
	}

	if !uc.conn.Send(ctx, msg) {
		return goerr.Wrap(ErrNotConnected, "failed to request reconcile", goerr.V(model.StatusKey, status))
	}
	logging.From(ctx).Info("reconcile requested", model.StatusKey, status)
	return nil
}

// Move runs the move workflow and reconciles the buckets touched by
// failed records
func (uc *BoardUseCase) Move(ctx context.Context, ids []model.RecordID, target types.Status, subStatus map[model.RecordID]types.Status, confirmer interfaces.Confirmer) (*model.MoveResult, error) {
	result, err := uc.move.Move(ctx, ids, target, subStatus, confirmer)
	if err != nil || result == nil {
		return result, err
	}
	for _, status := range result.AffectedStatuses() {
		if err := uc.Reconcile(ctx, status); err != nil {
			logging.From(ctx).Warn("reconcile after failed move was not sent", model.StatusKey, status, "error", err)
		}
	}
	return result, nil
}

// Search runs a retrying cross-bucket search
func (uc *BoardUseCase) Search(ctx context.Context, term string, maxAttempts int) (*SearchResult, error) {
	return uc.search.Search(ctx, term, maxAttempts)
}

func (uc *BoardUseCase) State() types.ConnectionState {
	return uc.conn.State()
}

func (uc *BoardUseCase) Filter() model.FilterContext {
	return uc.conn.Filter()
}

// Snapshot returns a point-in-time copy of every bucket in board order
func (uc *BoardUseCase) Snapshot() []*model.Bucket {
	return uc.store.Snapshot()
}

func (uc *BoardUseCase) Bucket(status types.Status) (*model.Bucket, bool) {
	return uc.store.Bucket(status)
}

// heartbeat pings, unless some buckets were fully loaded: those are
// re-requested in full instead since pagination never refreshes them
func (uc *BoardUseCase) heartbeat(_ context.Context, now time.Time) []any {
	full := uc.store.FullyLoadedStatuses()
	if len(full) == 0 {
		return []any{model.NewPing(now)}
	}

	filter := uc.conn.Filter()
	msgs := make([]any, 0, len(full))
	for _, status := range full {
		msgs = append(msgs, model.NewFetchAllForStatus(filter, status, now))
	}
	return msgs
}

// onIntegrityViolation re-fetches the violating bucket. Only one re-fetch
// per bucket is outstanding at a time: a violation reported while one is
// pending is logged and dropped, so a server repeating an inconsistent
// page cannot drive a request loop. The bucket is re-armed once a page
// or full load of it is applied, or a new preview arrives.
func (uc *BoardUseCase) onIntegrityViolation(status types.Status, _ error) {
	bucket := uc.catalog.BucketOf(status)

	uc.mu.Lock()
	ctx := uc.ctx
	if uc.refetching[bucket] {
		uc.mu.Unlock()
		logging.From(ctx).Warn("re-fetch already outstanding, violation ignored", model.StatusKey, bucket)
		return
	}
	uc.refetching[bucket] = true
	uc.mu.Unlock()

	if err := uc.Reconcile(ctx, bucket); err != nil {
		uc.refetchDone(bucket)
		logging.From(ctx).Warn("re-fetch after integrity violation was not sent", model.StatusKey, bucket, "error", err)
	}
}

func (uc *BoardUseCase) refetchDone(status types.Status) {
	uc.mu.Lock()
	delete(uc.refetching, uc.catalog.BucketOf(status))
	uc.mu.Unlock()
}
