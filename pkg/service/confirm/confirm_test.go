package confirm_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/service/confirm"
)

func TestPreset(t *testing.T) {
	ctx := context.Background()
	p := &confirm.Preset{
		Approve: true,
		Fields:  map[model.RecordID]map[string]any{7: {"signed_date": "2026-03-01"}},
	}

	ok, err := p.ConfirmMove(ctx, model.PendingMove{})
	gt.NoError(t, err)
	gt.Bool(t, ok).True()

	values, ok, err := p.CollectMissingFields(ctx, model.MissingFieldsRequest{Record: model.Record{ID: 7}})
	gt.NoError(t, err)
	gt.Bool(t, ok).True()
	gt.Value(t, values["signed_date"]).Equal("2026-03-01")

	_, ok, err = p.CollectMissingFields(ctx, model.MissingFieldsRequest{Record: model.Record{ID: 8}})
	gt.NoError(t, err)
	gt.Bool(t, ok).False()
}

func TestPrompt_ConfirmMove(t *testing.T) {
	testCases := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "yes", want: true},
	}

	for _, tc := range testCases {
		t.Run(strings.TrimSpace(tc.input), func(t *testing.T) {
			var out bytes.Buffer
			p := confirm.NewPrompt(strings.NewReader(tc.input), &out)
			ok, err := p.ConfirmMove(context.Background(), model.PendingMove{
				RecordIDs: []model.RecordID{1, 2},
				Target:    "Active",
			})
			gt.NoError(t, err)
			gt.Equal(t, ok, tc.want)
			gt.Bool(t, strings.Contains(out.String(), "Move 2 record(s)")).True()
		})
	}

	t.Run("closed input is an error", func(t *testing.T) {
		p := confirm.NewPrompt(strings.NewReader(""), &bytes.Buffer{})
		_, err := p.ConfirmMove(context.Background(), model.PendingMove{})
		gt.Error(t, err)
	})
}

func TestPrompt_CollectMissingFields(t *testing.T) {
	req := model.MissingFieldsRequest{
		Record:        model.Record{ID: 7},
		Target:        "Active",
		MissingFields: []string{"signed_date", "owner"},
		Labels:        map[string]string{"signed_date": "Agreement signed date"},
	}

	t.Run("collects every field", func(t *testing.T) {
		var out bytes.Buffer
		p := confirm.NewPrompt(strings.NewReader("2026-03-01\nbob\n"), &out)
		values, ok, err := p.CollectMissingFields(context.Background(), req)
		gt.NoError(t, err)
		gt.Bool(t, ok).True()
		gt.Value(t, values).Equal(map[string]any{"signed_date": "2026-03-01", "owner": "bob"})
		gt.Bool(t, strings.Contains(out.String(), "Agreement signed date")).True()
		gt.Bool(t, strings.Contains(out.String(), "owner")).True()
	})

	t.Run("empty answer cancels", func(t *testing.T) {
		p := confirm.NewPrompt(strings.NewReader("\n"), &bytes.Buffer{})
		_, ok, err := p.CollectMissingFields(context.Background(), req)
		gt.NoError(t, err)
		gt.Bool(t, ok).False()
	})
}
