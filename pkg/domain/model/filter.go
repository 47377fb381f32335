package model

import (
	"strings"

	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

// FilterContext selects the slice of the board a connection serves. It
// is carried into every outbound message instead of living in globals.
type FilterContext struct {
	Franchise string
	Mode      types.FilterMode
	// Assignee narrows the assigned mode to one person
	Assignee string
}

// Normalized returns a copy with defaults applied and whitespace trimmed
func (f FilterContext) Normalized() FilterContext {
	return FilterContext{
		Franchise: strings.TrimSpace(f.Franchise),
		Mode:      f.Mode.OrDefault(),
		Assignee:  strings.TrimSpace(f.Assignee),
	}
}

// Key identifies the filter. Two contexts with the same key share the
// same server-side view of the board.
func (f FilterContext) Key() string {
	n := f.Normalized()
	return n.Franchise + "|" + n.Mode.String() + "|" + strings.ToLower(n.Assignee)
}

// AssigneeFilter is the assignee sent with setAssignee. Only the
// assigned mode narrows by person.
func (f FilterContext) AssigneeFilter() *string {
	n := f.Normalized()
	if n.Mode != types.FilterModeAssigned || n.Assignee == "" {
		return nil
	}
	return &n.Assignee
}
