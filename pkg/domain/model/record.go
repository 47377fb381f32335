package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

// Wire keys of the record fields that are not free-form attributes
const (
	RecordKeyID       = "id"
	RecordKeyStatus   = "status"
	RecordKeyAssignee = "assignee"
)

// RecordID identifies a record on the board
type RecordID int64

// Record is one card on the board. Every wire key other than id, status
// and assignee is kept in Attributes.
type Record struct {
	ID         RecordID
	Status     types.Status
	Assignee   *string
	Attributes map[string]any
}

// Clone returns a deep copy so that buckets never share attribute maps
func (r Record) Clone() Record {
	c := Record{
		ID:     r.ID,
		Status: r.Status,
	}
	if r.Assignee != nil {
		v := *r.Assignee
		c.Assignee = &v
	}
	if r.Attributes != nil {
		c.Attributes = make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = cloneValue(v)
		}
	}
	return c
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Field returns the value stored under key, looking at the fixed fields
// first. The boolean is false when the key is absent.
func (r Record) Field(key string) (any, bool) {
	switch key {
	case RecordKeyID:
		return int64(r.ID), true
	case RecordKeyStatus:
		return string(r.Status), r.Status != ""
	case RecordKeyAssignee:
		if r.Assignee == nil {
			return nil, false
		}
		return *r.Assignee, true
	}
	v, ok := r.Attributes[key]
	return v, ok
}

// IsFieldEmpty reports whether key is absent, null, a blank string or
// an empty collection.
func (r Record) IsFieldEmpty(key string) bool {
	v, ok := r.Field(key)
	if !ok || v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// WithFields returns a copy of r with fields merged in. Fixed keys update
// the matching struct field.
func (r Record) WithFields(fields map[string]any) Record {
	c := r.Clone()
	for k, v := range fields {
		switch k {
		case RecordKeyID:
			continue
		case RecordKeyStatus:
			if s, ok := v.(string); ok {
				c.Status = types.Status(s)
			}
		case RecordKeyAssignee:
			if s, ok := v.(string); ok {
				c.Assignee = &s
			} else if v == nil {
				c.Assignee = nil
			}
		default:
			if c.Attributes == nil {
				c.Attributes = make(map[string]any)
			}
			c.Attributes[k] = cloneValue(v)
		}
	}
	return c
}

// MarshalJSON flattens the record into a single JSON object
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Attributes)+3)
	maps.Copy(m, r.Attributes)
	m[RecordKeyID] = int64(r.ID)
	m[RecordKeyStatus] = string(r.Status)
	if r.Assignee != nil {
		m[RecordKeyAssignee] = *r.Assignee
	} else {
		m[RecordKeyAssignee] = nil
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads a flat JSON object. The id may be encoded as a
// number or a numeric string.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(err, "failed to decode record")
	}

	idRaw, ok := raw[RecordKeyID]
	if !ok {
		return goerr.Wrap(ErrInvalidRecord, "record has no id")
	}
	var id json.Number
	dec := json.NewDecoder(bytes.NewReader(bytes.Trim(idRaw, `"`)))
	dec.UseNumber()
	if err := dec.Decode(&id); err != nil {
		return goerr.Wrap(ErrInvalidRecord, "record id is not numeric", goerr.V(RecordIDKey, string(idRaw)))
	}
	n, err := id.Int64()
	if err != nil {
		return goerr.Wrap(ErrInvalidRecord, "record id is not an integer", goerr.V(RecordIDKey, string(idRaw)))
	}

	rec := Record{ID: RecordID(n)}
	for k, v := range raw {
		switch k {
		case RecordKeyID:
		case RecordKeyStatus:
			var s *string
			if err := json.Unmarshal(v, &s); err != nil {
				return goerr.Wrap(ErrInvalidRecord, "record status is not a string", goerr.V(RecordIDKey, n))
			}
			if s != nil {
				rec.Status = types.Status(*s)
			}
		case RecordKeyAssignee:
			var s *string
			if err := json.Unmarshal(v, &s); err != nil {
				return goerr.Wrap(ErrInvalidRecord, "record assignee is not a string", goerr.V(RecordIDKey, n))
			}
			rec.Assignee = s
		default:
			var attr any
			if err := json.Unmarshal(v, &attr); err != nil {
				return goerr.Wrap(err, "failed to decode record attribute", goerr.V(RecordIDKey, n), goerr.V(FieldKey, k))
			}
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]any)
			}
			rec.Attributes[k] = attr
		}
	}

	*r = rec
	return nil
}
