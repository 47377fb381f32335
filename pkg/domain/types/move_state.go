package types

// MoveState is the stage a status transition request has reached
type MoveState string

const (
	MoveStateRequested  MoveState = "requested"
	MoveStateValidating MoveState = "validating"
	MoveStateBlocked    MoveState = "blocked"
	MoveStateConfirming MoveState = "confirming"
	MoveStateExecuting  MoveState = "executing"
	MoveStateSettled    MoveState = "settled"
	MoveStateFailed     MoveState = "failed"
	MoveStateCancelled  MoveState = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s MoveState) IsTerminal() bool {
	switch s {
	case MoveStateSettled, MoveStateFailed, MoveStateCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the move state
func (s MoveState) String() string {
	return string(s)
}
