package cli

import (
	"context"
	"time"

	"github.com/secmon-lab/boardsync/pkg/cli/config"
	"github.com/secmon-lab/boardsync/pkg/utils/errutil"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string, version string) error {
	var loggerCfg config.Logger
	var sentryCfg config.Sentry
	var closer func()

	app := &cli.Command{
		Name:    "boardsync",
		Usage:   "Real-time kanban board sync client",
		Version: version,
		Flags:   append(loggerCfg.Flags(), sentryCfg.Flags()...),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f

			if err := sentryCfg.Configure(version); err != nil {
				return ctx, err
			}

			logging.Default().Info("Starting boardsync", "logger", loggerCfg, "sentry", sentryCfg)
			return logging.With(ctx, logging.Default()), nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			errutil.FlushSentry(2 * time.Second)
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdWatch(),
			cmdMove(),
			cmdSearch(),
			cmdValidate(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		errutil.Handle(ctx, err, "failed to run app")
		return err
	}

	return nil
}
