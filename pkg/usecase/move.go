package usecase

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/repository/memory"
	"github.com/secmon-lab/boardsync/pkg/utils/clock"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentUpdates bounds the update sends of one batch in flight
const maxConcurrentUpdates = 16

// MovePlan is a validated move request. Records that passed validation
// are in Move; records missing required fields are in Blocked until
// Resolve fills them.
type MovePlan struct {
	State   types.MoveState
	Move    model.PendingMove
	Blocked []model.MissingFieldsRequest
	// Unchanged lists records already in their requested status
	Unchanged []model.RecordID
}

// MoveUseCase validates, confirms and executes status transitions
type MoveUseCase struct {
	store      *memory.BucketStore
	sender     interfaces.Sender
	filter     func() model.FilterContext
	identity   interfaces.IdentityProvider
	catalog    *config.Catalog
	clock      clock.Clock
	ackTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingAck
}

type pendingAck struct {
	recordID model.RecordID
	done     chan error
}

func NewMoveUseCase(
	store *memory.BucketStore,
	sender interfaces.Sender,
	filter func() model.FilterContext,
	identity interfaces.IdentityProvider,
	catalog *config.Catalog,
	clk clock.Clock,
	ackTimeout time.Duration,
) *MoveUseCase {
	if filter == nil {
		filter = func() model.FilterContext { return model.FilterContext{} }
	}
	if catalog == nil {
		catalog = config.NewCatalog(nil)
	}
	return &MoveUseCase{
		store:      store,
		sender:     sender,
		filter:     filter,
		identity:   identity,
		catalog:    catalog,
		clock:      clk,
		ackTimeout: ackTimeout,
		pending:    make(map[string]*pendingAck),
	}
}

// Plan validates every record against the required fields of the status
// it would enter. A record with an empty required field is blocked
// without affecting its siblings; nothing is moved.
func (uc *MoveUseCase) Plan(ctx context.Context, ids []model.RecordID, target types.Status, subStatus map[model.RecordID]types.Status) (*MovePlan, error) {
	if len(ids) == 0 {
		return nil, goerr.Wrap(ErrEmptyMove, "move has no records")
	}
	if len(uc.catalog.Statuses()) > 0 && !uc.catalog.IsKnown(target) {
		return nil, goerr.Wrap(ErrUnknownStatus, "target status is not on the board", goerr.V(model.StatusKey, target))
	}

	plan := &MovePlan{
		State: types.MoveStateValidating,
		Move: model.PendingMove{
			Target:       target,
			SubStatus:    make(map[model.RecordID]types.Status),
			FieldUpdates: make(map[model.RecordID]map[string]any),
		},
	}

	seen := make(map[model.RecordID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		rec, _, ok := uc.store.Find(id)
		if !ok {
			return nil, goerr.Wrap(ErrRecordNotFound, "record is not loaded", goerr.V(model.RecordIDKey, id))
		}

		newStatus := target
		if s, ok := subStatus[id]; ok && !s.IsZero() {
			if uc.catalog.BucketOf(s) != uc.catalog.BucketOf(target) {
				return nil, goerr.Wrap(ErrUnknownStatus, "sub-status does not belong to target",
					goerr.V(model.StatusKey, s), goerr.V(model.RecordIDKey, id))
			}
			newStatus = s
			plan.Move.SubStatus[id] = s
		}
		if rec.Status == newStatus {
			plan.Unchanged = append(plan.Unchanged, id)
			continue
		}

		if missing := uc.missingFields(rec, newStatus); len(missing) > 0 {
			plan.Blocked = append(plan.Blocked, model.MissingFieldsRequest{
				Record:        rec,
				Target:        newStatus,
				MissingFields: missing,
				Labels:        uc.labels(missing),
			})
			logging.From(ctx).Info("move blocked by missing fields",
				model.RecordIDKey, id, model.StatusKey, newStatus, FieldsKey, missing)
			continue
		}
		plan.Move.RecordIDs = append(plan.Move.RecordIDs, id)
	}

	plan.State = planState(plan)
	return plan, nil
}

func planState(plan *MovePlan) types.MoveState {
	if len(plan.Blocked) > 0 {
		return types.MoveStateBlocked
	}
	return types.MoveStateConfirming
}

func (uc *MoveUseCase) missingFields(rec model.Record, status types.Status) []string {
	var missing []string
	for _, f := range uc.catalog.RequiredFields(status) {
		if rec.IsFieldEmpty(f.Key) {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

func (uc *MoveUseCase) labels(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = uc.catalog.LabelForKey(k)
	}
	return out
}

// Resolve fills the missing fields of a blocked record. values may be
// keyed by record key or by display label. Once every required field
// is non-empty the record joins the pending move with values attached.
func (uc *MoveUseCase) Resolve(plan *MovePlan, id model.RecordID, values map[string]any) error {
	idx := slices.IndexFunc(plan.Blocked, func(r model.MissingFieldsRequest) bool { return r.Record.ID == id })
	if idx < 0 {
		return goerr.Wrap(ErrNotBlocked, "record has no missing fields request", goerr.V(model.RecordIDKey, id))
	}
	req := plan.Blocked[idx]

	fields := make(map[string]any, len(values))
	for k, v := range values {
		if key, ok := uc.catalog.KeyForLabel(k); ok {
			k = key
		}
		fields[k] = v
	}

	filled := req.Record.WithFields(fields)
	if still := uc.missingFields(filled, req.Target); len(still) > 0 {
		return goerr.Wrap(ErrMissingFields, "required fields are still empty",
			goerr.V(model.RecordIDKey, id), goerr.V(FieldsKey, still))
	}

	plan.Blocked = slices.Delete(plan.Blocked, idx, idx+1)
	plan.Move.RecordIDs = append(plan.Move.RecordIDs, id)
	plan.Move.FieldUpdates[id] = fields
	plan.State = planState(plan)
	return nil
}

// Move runs the whole workflow through confirmer: missing fields are
// collected first, then the batch is confirmed and executed. Cancelling
// any prompt aborts the batch with no state change.
func (uc *MoveUseCase) Move(ctx context.Context, ids []model.RecordID, target types.Status, subStatus map[model.RecordID]types.Status, confirmer interfaces.Confirmer) (*model.MoveResult, error) {
	plan, err := uc.Plan(ctx, ids, target, subStatus)
	if err != nil {
		return nil, err
	}

	for len(plan.Blocked) > 0 {
		req := plan.Blocked[0]
		values, ok, err := confirmer.CollectMissingFields(ctx, req)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to collect missing fields", goerr.V(model.RecordIDKey, req.Record.ID))
		}
		if !ok {
			logging.From(ctx).Info("move cancelled while collecting fields", model.RecordIDKey, req.Record.ID)
			return &model.MoveResult{State: types.MoveStateCancelled, Blocked: plan.Blocked}, nil
		}
		if err := uc.Resolve(plan, req.Record.ID, values); err != nil {
			return &model.MoveResult{State: types.MoveStateCancelled, Blocked: plan.Blocked}, err
		}
	}

	if len(plan.Move.RecordIDs) == 0 {
		return &model.MoveResult{State: types.MoveStateSettled}, nil
	}

	approved, err := confirmer.ConfirmMove(ctx, plan.Move)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to confirm move")
	}
	if !approved {
		logging.From(ctx).Info("move cancelled by user", "records", len(plan.Move.RecordIDs), model.StatusKey, target)
		return &model.MoveResult{State: types.MoveStateCancelled}, nil
	}

	return uc.Execute(ctx, plan)
}

// Execute applies the confirmed move. Each record is moved locally and
// its update sent concurrently with the others; outcomes are awaited
// independently. A failed record does not undo the moves of the others
// and its own optimistic move is kept until the caller reconciles.
func (uc *MoveUseCase) Execute(ctx context.Context, plan *MovePlan) (*model.MoveResult, error) {
	if len(plan.Blocked) > 0 {
		return nil, goerr.Wrap(ErrMoveBlocked, "resolve missing fields before executing",
			goerr.V("blocked", len(plan.Blocked)))
	}

	user, err := uc.identity.DisplayName(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve user identity")
	}

	plan.State = types.MoveStateExecuting
	move := plan.Move
	outcomes := make([]model.MoveOutcome, len(move.RecordIDs))

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentUpdates)
	for i, id := range move.RecordIDs {
		eg.Go(func() error {
			outcomes[i] = uc.executeOne(ctx, user, id, move.NewStatusFor(id), move.FieldUpdates[id])
			return nil
		})
	}
	_ = eg.Wait()

	result := &model.MoveResult{State: types.MoveStateSettled, Outcomes: outcomes}
	if failed := result.Failed(); len(failed) > 0 {
		result.State = types.MoveStateFailed
		logging.From(ctx).Warn("move finished with failures",
			"failed", len(failed), "total", len(outcomes), "reconcile", result.AffectedStatuses())
	}
	plan.State = result.State
	return result, nil
}

func (uc *MoveUseCase) executeOne(ctx context.Context, user string, id model.RecordID, to types.Status, fields map[string]any) model.MoveOutcome {
	out := model.MoveOutcome{RecordID: id, To: to}

	rec, _, ok := uc.store.Find(id)
	if !ok {
		out.Err = goerr.Wrap(ErrRecordNotFound, "record left the board before the move", goerr.V(model.RecordIDKey, id))
		return out
	}

	from, err := uc.store.MoveRecordWithFields(ctx, id, rec.Status, to, fields)
	if err != nil {
		out.Err = err
		return out
	}
	out.From = from
	out.RequestID = uuid.NewString()

	var ack *pendingAck
	if uc.ackTimeout > 0 {
		ack = uc.expect(out.RequestID, id)
		defer uc.forget(out.RequestID)
	}

	msg := model.Update{
		Type:          types.MessageUpdate,
		ClientID:      id,
		NewStatus:     to,
		CurrentStatus: rec.Status,
		User:          user,
		FilterMode:    uc.filter().Normalized().Mode,
		RequestID:     out.RequestID,
		Timestamp:     uc.clock.Now().UnixMilli(),
	}
	if len(fields) > 0 {
		msg.FieldUpdates = maps.Clone(fields)
	}

	if !uc.sender.Send(ctx, msg) {
		out.Err = goerr.Wrap(ErrNotConnected, "update could not be sent",
			goerr.V(model.RecordIDKey, id), goerr.V(model.RequestIDKey, out.RequestID))
		return out
	}
	if ack == nil {
		return out
	}

	timeout := make(chan struct{})
	t := uc.clock.AfterFunc(uc.ackTimeout, func() { close(timeout) })
	defer t.Stop()

	select {
	case err := <-ack.done:
		out.Err = err
	case <-timeout:
		// an acknowledgement racing the deadline still counts
		select {
		case err := <-ack.done:
			out.Err = err
		default:
			out.Err = goerr.Wrap(ErrAckTimeout, "no acknowledgement",
				goerr.V(model.RecordIDKey, id), goerr.V(model.RequestIDKey, out.RequestID))
		}
	case <-ctx.Done():
		out.Err = goerr.Wrap(ctx.Err(), "interrupted while waiting for acknowledgement",
			goerr.V(model.RecordIDKey, id))
	}
	return out
}

func (uc *MoveUseCase) expect(requestID string, id model.RecordID) *pendingAck {
	ack := &pendingAck{recordID: id, done: make(chan error, 1)}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.pending[requestID] = ack
	return ack
}

func (uc *MoveUseCase) forget(requestID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.pending, requestID)
}

func (uc *MoveUseCase) settle(requestID string, id *model.RecordID, err error) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	ack, ok := uc.pending[requestID]
	if !ok && requestID == "" && id != nil {
		for rid, p := range uc.pending {
			if p.recordID == *id {
				ack, ok, requestID = p, true, rid
				break
			}
		}
	}
	if !ok {
		return false
	}
	delete(uc.pending, requestID)
	ack.done <- err
	return true
}

// HandleAck settles the update acknowledged by msg
func (uc *MoveUseCase) HandleAck(ctx context.Context, msg *model.StatusUpdatedMessage) error {
	var err error
	if !msg.Success {
		err = goerr.Wrap(ErrUpdateRejected, msg.Message,
			goerr.V(model.RecordIDKey, msg.ClientID), goerr.V(model.RequestIDKey, msg.RequestID))
	}
	id := msg.ClientID
	if !uc.settle(msg.RequestID, &id, err) {
		logging.From(ctx).Debug("acknowledgement for unknown request",
			model.RequestIDKey, msg.RequestID, model.RecordIDKey, msg.ClientID)
	}
	return nil
}

// HandleError settles the update an error frame refers to. Errors that
// name no request are only logged.
func (uc *MoveUseCase) HandleError(ctx context.Context, msg *model.ErrorMessage) error {
	logging.From(ctx).Warn("server reported an error", "message", msg.Message,
		model.RequestIDKey, msg.RequestID)

	if msg.RequestID == "" && msg.ClientID == nil {
		return nil
	}
	err := goerr.Wrap(ErrUpdateRejected, msg.Message, goerr.V(model.RequestIDKey, msg.RequestID))
	uc.settle(msg.RequestID, msg.ClientID, err)
	return nil
}
