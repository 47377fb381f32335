package model

import (
	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

// PendingMove is a batch of records that passed validation and waits for
// the user to confirm or cancel the transition.
type PendingMove struct {
	RecordIDs []RecordID
	Target    types.Status
	// SubStatus optionally picks a sub-status of Target per record
	SubStatus map[RecordID]types.Status
	// FieldUpdates holds values collected for previously blocked records
	FieldUpdates map[RecordID]map[string]any
}

// NewStatusFor returns the status sent to the server for id
func (p *PendingMove) NewStatusFor(id RecordID) types.Status {
	if s, ok := p.SubStatus[id]; ok && !s.IsZero() {
		return s
	}
	return p.Target
}

// MissingFieldsRequest asks for values of required fields that are
// empty on Record before it may enter Target.
type MissingFieldsRequest struct {
	Record Record
	Target types.Status
	// MissingFields are canonical record keys
	MissingFields []string
	// Labels maps each missing key to its display label
	Labels map[string]string
}

// MoveOutcome is the result for a single record of a batch
type MoveOutcome struct {
	RecordID  RecordID
	From      types.Status
	To        types.Status
	RequestID string
	Err       error
}

// OK reports whether the record settled successfully
func (o MoveOutcome) OK() bool {
	return o.Err == nil
}

// MoveResult is the terminal report of one workflow run
type MoveResult struct {
	State    types.MoveState
	Outcomes []MoveOutcome
	// Blocked lists requests that were still unresolved when the run ended
	Blocked []MissingFieldsRequest
}

// Failed returns the outcomes that carry an error
func (r *MoveResult) Failed() []MoveOutcome {
	var failed []MoveOutcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// AffectedStatuses returns the buckets touched by failed outcomes, which
// are the ones a caller should reconcile.
func (r *MoveResult) AffectedStatuses() []types.Status {
	seen := make(map[types.Status]bool)
	var out []types.Status
	for _, o := range r.Failed() {
		for _, s := range []types.Status{o.From, o.To} {
			if s.IsZero() || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
