package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/cli/config"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var catalogCfg config.Catalog

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the status catalog and print the board layout",
		Flags:   catalogCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			catalog, err := catalogCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "catalog validation failed")
			}

			logging.From(ctx).Info("Catalog validation passed",
				"catalog", catalogCfg,
				"status_count", len(catalog.Statuses()),
			)
			renderCatalog(color.Output, catalog)
			return nil
		},
	}
}
