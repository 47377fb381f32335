package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrInvalidRecord   = goerr.New("invalid record")
	ErrInvalidEnvelope = goerr.New("invalid envelope")
	ErrUnknownMessage  = goerr.New("unknown message type")
	ErrInvalidEndpoint = goerr.New("invalid board endpoint")
)

// Context keys for error values
const (
	RecordIDKey    = "record_id"
	StatusKey      = "status"
	FieldKey       = "field"
	MessageTypeKey = "message_type"
	PageKey        = "page"
	TotalKey       = "total"
	RequestIDKey   = "request_id"
)
