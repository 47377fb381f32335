package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

func TestCatalog_Lookup(t *testing.T) {
	c := config.NewCatalog([]config.StatusDefinition{
		{Name: "Lead"},
		{Name: "Active",
			SubStatuses: []types.Status{"Trade", "Winback"},
			Required:    []config.RequiredField{{Key: "signed_date", Label: "Agreement signed date"}},
		},
	})

	gt.Value(t, c.Statuses()).Equal([]types.Status{"Lead", "Active"})
	gt.Value(t, c.BucketOf("Trade")).Equal(types.Status("Active"))
	gt.Value(t, c.BucketOf("Active")).Equal(types.Status("Active"))
	gt.Value(t, c.BucketOf("Unknown")).Equal(types.Status("Unknown"))
	gt.Bool(t, c.IsKnown("Winback")).True()
	gt.Bool(t, c.IsKnown("Unknown")).False()

	t.Run("sub-status inherits requirements", func(t *testing.T) {
		gt.A(t, c.RequiredFields("Trade")).Length(1)
		gt.Value(t, c.RequiredFields("Trade")[0].Key).Equal("signed_date")
		gt.A(t, c.RequiredFields("Lead")).Length(0)
	})

	t.Run("two-sided label lookup", func(t *testing.T) {
		key, ok := c.KeyForLabel("Agreement signed date")
		gt.Bool(t, ok).True()
		gt.Value(t, key).Equal("signed_date")
		gt.Value(t, c.LabelForKey("signed_date")).Equal("Agreement signed date")
		gt.Value(t, c.LabelForKey("unknown_key")).Equal("unknown_key")
	})
}

func TestDefaultStatusDefinitions(t *testing.T) {
	c := config.NewCatalog(config.DefaultStatusDefinitions())
	gt.A(t, c.Statuses()).Length(14)
	gt.Value(t, c.BucketOf("Ghosted")).Equal(types.Status("Awaiting Replacement"))
	gt.A(t, c.RequiredFields("Lead")).Length(4)
}
