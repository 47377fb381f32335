package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// Connection errors
	ErrNotConnected = goerr.New("board connection is not open")

	// Search errors
	ErrSearchTermTooShort = goerr.New("search term is too short")
	ErrSearchCancelled    = goerr.New("search was superseded or cancelled")

	// Move errors
	ErrRecordNotFound = goerr.New("record not found on board")
	ErrUnknownStatus  = goerr.New("unknown status")
	ErrEmptyMove      = goerr.New("no records to move")
	ErrMoveBlocked    = goerr.New("move has records with missing required fields")
	ErrMissingFields  = goerr.New("required fields are still empty")
	ErrNotBlocked     = goerr.New("record is not blocked")
	ErrUpdateRejected = goerr.New("server rejected the update")
	ErrAckTimeout     = goerr.New("update was not acknowledged in time")
)

// Context keys for error values
const (
	SearchTermKey = "search_term"
	AttemptKey    = "attempt"
	FieldsKey     = "fields"
)
