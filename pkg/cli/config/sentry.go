package config

import (
	"log/slog"

	"github.com/secmon-lab/boardsync/pkg/utils/errutil"
	"github.com/urfave/cli/v3"
)

type Sentry struct {
	dsn         string
	environment string
}

func (x *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for error reporting",
			Category:    "Sentry",
			Destination: &x.dsn,
			Sources:     cli.EnvVars("BOARDSYNC_SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment",
			Category:    "Sentry",
			Value:       "production",
			Destination: &x.environment,
			Sources:     cli.EnvVars("BOARDSYNC_SENTRY_ENV"),
		},
	}
}

func (x Sentry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", x.dsn != ""),
		slog.String("environment", x.environment),
	)
}

func (x *Sentry) Configure(release string) error {
	return errutil.InitSentry(errutil.SentryConfig{
		DSN:         x.dsn,
		Environment: x.environment,
		Release:     release,
	})
}
