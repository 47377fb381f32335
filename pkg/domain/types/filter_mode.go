package types

import "fmt"

// FilterMode selects which records of the board the server sends
type FilterMode string

const (
	FilterModeAssigned   FilterMode = "assigned"
	FilterModeUnassigned FilterMode = "unassigned"
	FilterModeAll        FilterMode = "all"
)

// DefaultFilterMode is used when no mode has been chosen
const DefaultFilterMode = FilterModeAssigned

// IsValid checks if the filter mode is valid
func (m FilterMode) IsValid() bool {
	switch m {
	case FilterModeAssigned, FilterModeUnassigned, FilterModeAll:
		return true
	default:
		return false
	}
}

// OrDefault returns DefaultFilterMode when m is empty
func (m FilterMode) OrDefault() FilterMode {
	if m == "" {
		return DefaultFilterMode
	}
	return m
}

// String returns the string representation of the filter mode
func (m FilterMode) String() string {
	return string(m)
}

// ParseFilterMode parses a string into a FilterMode. Empty input yields
// the default mode.
func ParseFilterMode(s string) (FilterMode, error) {
	mode := FilterMode(s).OrDefault()
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid filter mode: %s", s)
	}
	return mode, nil
}
