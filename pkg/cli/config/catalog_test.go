package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/cli/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// parseFlags runs flags through a command so Destination fields are set
// the same way the real CLI sets them
func parseFlags(t *testing.T, flags []cli.Flag, args ...string) {
	t.Helper()
	cmd := &cli.Command{
		Name:   "test",
		Flags:  flags,
		Action: func(context.Context, *cli.Command) error { return nil },
	}
	gt.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...))).Required()
}

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600)).Required()
	return path
}

func TestLoadCatalogFile(t *testing.T) {
	path := writeCatalog(t, `
[[status]]
name = "Lead"

  [[status.required]]
  key = "industry"
  label = "Specific Industry"

[[status]]
name = "Active"
sub_statuses = ["Trade", "Winback"]

  [[status.required]]
  key = "signed_date"
  label = "Agreement signed date"

[[status]]
name = "Canceled"
`)

	file, err := config.LoadCatalogFile(path)
	gt.NoError(t, err).Required()
	defs := file.Definitions()
	gt.A(t, defs).Length(3)
	gt.Value(t, defs[1].Name).Equal(types.Status("Active"))
	gt.Value(t, defs[1].SubStatuses).Equal([]types.Status{"Trade", "Winback"})
	gt.Value(t, defs[1].Required[0].Label).Equal("Agreement signed date")

	cfg := &config.Catalog{}
	parseFlags(t, cfg.Flags(), "--catalog", path)
	catalog, err := cfg.Configure()
	gt.NoError(t, err).Required()
	gt.Value(t, catalog.Statuses()).Equal([]types.Status{"Lead", "Active", "Canceled"})
	gt.Value(t, catalog.BucketOf("Trade")).Equal(types.Status("Active"))
	key, ok := catalog.KeyForLabel("Specific Industry")
	gt.Bool(t, ok).True()
	gt.Value(t, key).Equal("industry")
}

func TestLoadCatalogFile_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		err     error
	}{
		{
			name:    "no status",
			content: ``,
			err:     config.ErrInvalidConfig,
		},
		{
			name: "empty name",
			content: `
[[status]]
name = "  "
`,
			err: config.ErrMissingName,
		},
		{
			name: "duplicate status",
			content: `
[[status]]
name = "Lead"
[[status]]
name = "Lead"
`,
			err: config.ErrDuplicateStatus,
		},
		{
			name: "sub-status shadows a bucket",
			content: `
[[status]]
name = "Trade"
[[status]]
name = "Active"
sub_statuses = ["Trade"]
`,
			err: config.ErrDuplicateStatus,
		},
		{
			name: "required field without label",
			content: `
[[status]]
name = "Lead"
  [[status.required]]
  key = "industry"
`,
			err: config.ErrInvalidRequirement,
		},
		{
			name: "label used for two keys",
			content: `
[[status]]
name = "Lead"
  [[status.required]]
  key = "industry"
  label = "Industry"
[[status]]
name = "Active"
  [[status.required]]
  key = "sector"
  label = "Industry"
`,
			err: config.ErrLabelConflict,
		},
		{
			name: "key with two labels",
			content: `
[[status]]
name = "Lead"
  [[status.required]]
  key = "industry"
  label = "Industry"
[[status]]
name = "Active"
  [[status.required]]
  key = "industry"
  label = "Sector"
`,
			err: config.ErrLabelConflict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadCatalogFile(writeCatalog(t, tc.content))
			gt.Error(t, err).Is(tc.err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadCatalogFile(filepath.Join(t.TempDir(), "none.toml"))
		gt.Error(t, err).Is(config.ErrConfigNotFound)
	})

	t.Run("malformed TOML", func(t *testing.T) {
		_, err := config.LoadCatalogFile(writeCatalog(t, `[[status]`))
		gt.Error(t, err)
	})
}

func TestCatalog_DefaultLayout(t *testing.T) {
	cfg := &config.Catalog{}
	catalog, err := cfg.Configure()
	gt.NoError(t, err).Required()
	gt.Value(t, catalog.BucketOf("Trade")).Equal(types.Status("Active"))
	gt.Bool(t, catalog.IsKnown("Lead")).True()
}
