package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

// Envelope carries the discriminator shared by every frame
type Envelope struct {
	Type types.MessageType `json:"type"`
}

// DecodeEnvelope reads the type of a raw frame
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, goerr.Wrap(ErrInvalidEnvelope, "malformed frame", goerr.V("cause", err.Error()))
	}
	if env.Type == "" {
		return Envelope{}, goerr.Wrap(ErrInvalidEnvelope, "frame has no type")
	}
	return env, nil
}

// Outbound messages

type FetchPreview struct {
	Type       types.MessageType `json:"type"`
	FilterMode types.FilterMode  `json:"filterMode"`
	Timestamp  int64             `json:"timestamp"`
}

func NewFetchPreview(filter FilterContext, now time.Time) FetchPreview {
	return FetchPreview{
		Type:       types.MessageFetchPreview,
		FilterMode: filter.Normalized().Mode,
		Timestamp:  now.UnixMilli(),
	}
}

type FetchMore struct {
	Type         types.MessageType `json:"type"`
	Status       types.Status      `json:"status"`
	Page         int               `json:"page"`
	ItemsPerPage int               `json:"itemsPerPage"`
	FilterMode   types.FilterMode  `json:"filterMode"`
	Timestamp    int64             `json:"timestamp"`
}

func NewFetchMore(filter FilterContext, status types.Status, page, itemsPerPage int, now time.Time) FetchMore {
	return FetchMore{
		Type:         types.MessageFetchMore,
		Status:       status,
		Page:         page,
		ItemsPerPage: itemsPerPage,
		FilterMode:   filter.Normalized().Mode,
		Timestamp:    now.UnixMilli(),
	}
}

type FetchAllForStatus struct {
	Type       types.MessageType `json:"type"`
	Status     types.Status      `json:"status"`
	FilterMode types.FilterMode  `json:"filterMode"`
	Timestamp  int64             `json:"timestamp"`
}

func NewFetchAllForStatus(filter FilterContext, status types.Status, now time.Time) FetchAllForStatus {
	return FetchAllForStatus{
		Type:       types.MessageFetchAllForStatus,
		Status:     status,
		FilterMode: filter.Normalized().Mode,
		Timestamp:  now.UnixMilli(),
	}
}

type Update struct {
	Type          types.MessageType `json:"type"`
	ClientID      RecordID          `json:"clientId"`
	NewStatus     types.Status      `json:"newStatus"`
	CurrentStatus types.Status      `json:"currentStatus"`
	User          string            `json:"user"`
	FilterMode    types.FilterMode  `json:"filterMode"`
	RequestID     string            `json:"requestId"`
	FieldUpdates  map[string]any    `json:"fieldUpdates,omitempty"`
	Timestamp     int64             `json:"timestamp"`
}

type SearchInStatus struct {
	Type                 types.MessageType `json:"type"`
	SearchTerm           string            `json:"searchTerm"`
	SearchAcrossStatuses bool              `json:"searchAcrossStatuses"`
	FilterMode           types.FilterMode  `json:"filterMode,omitempty"`
}

func NewSearchInStatus(filter FilterContext, term string) SearchInStatus {
	return SearchInStatus{
		Type:                 types.MessageSearchInStatus,
		SearchTerm:           term,
		SearchAcrossStatuses: true,
		FilterMode:           filter.Normalized().Mode,
	}
}

type SetAssignee struct {
	Type       types.MessageType `json:"type"`
	Assignee   *string           `json:"assignee"`
	FilterMode types.FilterMode  `json:"filterMode"`
	Timestamp  int64             `json:"timestamp"`
}

func NewSetAssignee(filter FilterContext, now time.Time) SetAssignee {
	return SetAssignee{
		Type:       types.MessageSetAssignee,
		Assignee:   filter.AssigneeFilter(),
		FilterMode: filter.Normalized().Mode,
		Timestamp:  now.UnixMilli(),
	}
}

type Ping struct {
	Type      types.MessageType `json:"type"`
	Timestamp int64             `json:"timestamp"`
}

func NewPing(now time.Time) Ping {
	return Ping{Type: types.MessagePing, Timestamp: now.UnixMilli()}
}

// Inbound messages

// PreviewBucket is one column of the initial snapshot
type PreviewBucket struct {
	Preview []Record `json:"preview"`
	Total   int      `json:"total"`
}

type PreviewMessage struct {
	Data map[types.Status]PreviewBucket `json:"data"`
}

func (m *PreviewMessage) Validate() error {
	if m.Data == nil {
		return goerr.Wrap(ErrInvalidEnvelope, "preview has no data")
	}
	for status, b := range m.Data {
		if status.IsZero() || b.Total < 0 {
			return goerr.Wrap(ErrInvalidEnvelope, "invalid preview bucket",
				goerr.V(StatusKey, status), goerr.V(TotalKey, b.Total))
		}
	}
	return nil
}

type ClientsMessage struct {
	Status  types.Status `json:"status"`
	Clients []Record     `json:"clients"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
}

func (m *ClientsMessage) Validate() error {
	if m.Status.IsZero() || m.Clients == nil {
		return goerr.Wrap(ErrInvalidEnvelope, "clients message needs status and clients")
	}
	if m.Page < 1 || m.Total < 0 {
		return goerr.Wrap(ErrInvalidEnvelope, "invalid clients page",
			goerr.V(StatusKey, m.Status), goerr.V(PageKey, m.Page), goerr.V(TotalKey, m.Total))
	}
	return nil
}

type AllClientsMessage struct {
	Status  types.Status `json:"status"`
	Clients []Record     `json:"clients"`
	Total   int          `json:"total"`
}

func (m *AllClientsMessage) Validate() error {
	if m.Status.IsZero() || m.Clients == nil {
		return goerr.Wrap(ErrInvalidEnvelope, "allClientsForStatus needs status and clients")
	}
	if m.Total < 0 {
		return goerr.Wrap(ErrInvalidEnvelope, "negative total", goerr.V(StatusKey, m.Status), goerr.V(TotalKey, m.Total))
	}
	return nil
}

type SearchResultsMessage struct {
	Clients []Record     `json:"clients"`
	Status  types.Status `json:"status,omitempty"`
}

// StatusUpdatedMessage acknowledges one update request
type StatusUpdatedMessage struct {
	RequestID string   `json:"requestId"`
	ClientID  RecordID `json:"clientId"`
	Success   bool     `json:"success"`
	Message   string   `json:"message,omitempty"`
}

type ErrorMessage struct {
	Message   string    `json:"message"`
	RequestID string    `json:"requestId,omitempty"`
	ClientID  *RecordID `json:"clientId,omitempty"`
}

type PongMessage struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}
