package types

import "strings"

// Status is the name of a board column. The set of valid statuses is
// configured by the catalog, not fixed at compile time.
type Status string

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsZero reports whether the status is empty
func (s Status) IsZero() bool {
	return strings.TrimSpace(string(s)) == ""
}
