package model_test

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

func TestRecord_UnmarshalJSON(t *testing.T) {
	t.Run("flat object", func(t *testing.T) {
		var r model.Record
		err := json.Unmarshal([]byte(`{"id":7,"status":"Lead","assignee":"alice","client_name":"John Smith","fee":1200}`), &r)
		gt.NoError(t, err).Required()

		gt.Value(t, r.ID).Equal(model.RecordID(7))
		gt.Value(t, r.Status).Equal(types.Status("Lead"))
		gt.Value(t, r.Assignee).NotNil()
		gt.Value(t, *r.Assignee).Equal("alice")
		gt.Value(t, r.Attributes["client_name"]).Equal("John Smith")
		gt.Value(t, r.Attributes["fee"]).Equal(float64(1200))
	})

	t.Run("string id and null assignee", func(t *testing.T) {
		var r model.Record
		err := json.Unmarshal([]byte(`{"id":"42","status":"Active","assignee":null}`), &r)
		gt.NoError(t, err).Required()
		gt.Value(t, r.ID).Equal(model.RecordID(42))
		gt.Value(t, r.Assignee).Nil()
	})

	t.Run("missing id", func(t *testing.T) {
		var r model.Record
		err := json.Unmarshal([]byte(`{"status":"Lead"}`), &r)
		gt.Error(t, err).Is(model.ErrInvalidRecord)
	})

	t.Run("non numeric id", func(t *testing.T) {
		var r model.Record
		err := json.Unmarshal([]byte(`{"id":"abc"}`), &r)
		gt.Error(t, err).Is(model.ErrInvalidRecord)
	})
}

func TestRecord_MarshalRoundTrip(t *testing.T) {
	assignee := "bob"
	r := model.Record{
		ID:         3,
		Status:     "Lead",
		Assignee:   &assignee,
		Attributes: map[string]any{"company": "Acme"},
	}
	data, err := json.Marshal(r)
	gt.NoError(t, err).Required()

	var m map[string]any
	gt.NoError(t, json.Unmarshal(data, &m)).Required()
	gt.Value(t, m["id"]).Equal(float64(3))
	gt.Value(t, m["status"]).Equal("Lead")
	gt.Value(t, m["assignee"]).Equal("bob")
	gt.Value(t, m["company"]).Equal("Acme")
}

func TestRecord_IsFieldEmpty(t *testing.T) {
	r := model.Record{
		ID:     1,
		Status: "Lead",
		Attributes: map[string]any{
			"blank":   "  ",
			"filled":  "x",
			"nothing": nil,
			"list":    []any{},
			"zero":    float64(0),
		},
	}

	tests := []struct {
		key   string
		empty bool
	}{
		{key: "blank", empty: true},
		{key: "filled", empty: false},
		{key: "nothing", empty: true},
		{key: "list", empty: true},
		{key: "zero", empty: false},
		{key: "absent", empty: true},
		{key: "assignee", empty: true},
		{key: "status", empty: false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			gt.Bool(t, r.IsFieldEmpty(tt.key) == tt.empty).True()
		})
	}
}

func TestRecord_CloneIsIndependent(t *testing.T) {
	assignee := "alice"
	orig := model.Record{
		ID:         1,
		Assignee:   &assignee,
		Attributes: map[string]any{"tags": []any{"a"}, "company": "Acme"},
	}
	c := orig.Clone()
	c.Attributes["company"] = "Other"
	c.Attributes["tags"].([]any)[0] = "b"
	*c.Assignee = "mallory"

	gt.Value(t, orig.Attributes["company"]).Equal("Acme")
	gt.Value(t, orig.Attributes["tags"].([]any)[0]).Equal("a")
	gt.Value(t, *orig.Assignee).Equal("alice")
}

func TestRecord_WithFields(t *testing.T) {
	r := model.Record{ID: 9, Status: "Lead"}
	updated := r.WithFields(map[string]any{
		"signed_date": "2026-01-02",
		"assignee":    "carol",
		"id":          100,
	})

	gt.Value(t, updated.ID).Equal(model.RecordID(9))
	gt.Value(t, *updated.Assignee).Equal("carol")
	gt.Bool(t, updated.IsFieldEmpty("signed_date")).False()
	gt.Bool(t, r.IsFieldEmpty("signed_date")).True()
}
