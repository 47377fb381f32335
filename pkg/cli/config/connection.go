package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/service/connection"
	"github.com/secmon-lab/boardsync/pkg/service/identity"
	"github.com/urfave/cli/v3"
)

// Connection holds the board endpoint, the filter context and the
// reconnect tuning
type Connection struct {
	url       string
	user      string
	token     string
	name      string
	franchise string
	mode      string
	assignee  string

	cfg connection.Config
}

func (x *Connection) Flags() []cli.Flag {
	x.cfg = connection.DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "url",
			Usage:       "Board server base URL (http, https, ws or wss)",
			Category:    "Connection",
			Destination: &x.url,
			Sources:     cli.EnvVars("BOARDSYNC_URL"),
		},
		&cli.StringFlag{
			Name:        "user",
			Usage:       "User identity sent as the authorization of the socket",
			Category:    "Connection",
			Destination: &x.user,
			Sources:     cli.EnvVars("BOARDSYNC_USER"),
		},
		&cli.StringFlag{
			Name:        "token",
			Usage:       "Identity token (JWT); its name claim is stamped on updates",
			Category:    "Connection",
			Destination: &x.token,
			Sources:     cli.EnvVars("BOARDSYNC_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "name",
			Usage:       "Display name stamped on updates (overrides --token)",
			Category:    "Connection",
			Destination: &x.name,
			Sources:     cli.EnvVars("BOARDSYNC_NAME"),
		},
		&cli.StringFlag{
			Name:        "franchise",
			Usage:       "Franchise the board is scoped to",
			Category:    "Filter",
			Destination: &x.franchise,
			Sources:     cli.EnvVars("BOARDSYNC_FRANCHISE"),
		},
		&cli.StringFlag{
			Name:        "filter-mode",
			Usage:       "Filter mode [assigned|unassigned|all]",
			Category:    "Filter",
			Value:       string(types.DefaultFilterMode),
			Destination: &x.mode,
			Sources:     cli.EnvVars("BOARDSYNC_FILTER_MODE"),
		},
		&cli.StringFlag{
			Name:        "assignee",
			Usage:       "Assignee to narrow the assigned mode to",
			Category:    "Filter",
			Destination: &x.assignee,
			Sources:     cli.EnvVars("BOARDSYNC_ASSIGNEE"),
		},
		&cli.DurationFlag{
			Name:        "connect-timeout",
			Usage:       "Timeout of one connection attempt",
			Category:    "Connection",
			Value:       x.cfg.ConnectTimeout,
			Destination: &x.cfg.ConnectTimeout,
			Sources:     cli.EnvVars("BOARDSYNC_CONNECT_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:        "ping-interval",
			Usage:       "Heartbeat interval",
			Category:    "Connection",
			Value:       x.cfg.PingInterval,
			Destination: &x.cfg.PingInterval,
			Sources:     cli.EnvVars("BOARDSYNC_PING_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:        "idle-timeout",
			Usage:       "Reconnect when nothing is received for this long (0 disables)",
			Category:    "Connection",
			Value:       x.cfg.IdleTimeout,
			Destination: &x.cfg.IdleTimeout,
			Sources:     cli.EnvVars("BOARDSYNC_IDLE_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:        "max-attempts",
			Usage:       "Reconnect attempts before giving up",
			Category:    "Connection",
			Value:       x.cfg.MaxAttempts,
			Destination: &x.cfg.MaxAttempts,
			Sources:     cli.EnvVars("BOARDSYNC_MAX_ATTEMPTS"),
		},
	}
}

func (x Connection) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", x.url),
		slog.Int("user.len", len(x.user)),
		slog.Int("token.len", len(x.token)),
		slog.String("franchise", x.franchise),
		slog.String("filter_mode", x.mode),
		slog.Duration("connect_timeout", x.cfg.ConnectTimeout),
		slog.Duration("ping_interval", x.cfg.PingInterval),
		slog.Int("max_attempts", x.cfg.MaxAttempts),
	)
}

// Configure returns the validated connection settings
func (x *Connection) Configure() (connection.Config, error) {
	cfg := x.cfg
	if cfg.BaseDelay == 0 {
		cfg = connection.DefaultConfig()
	}
	cfg.BaseURL = x.url
	cfg.User = x.user

	if x.url == "" {
		return cfg, goerr.Wrap(ErrInvalidConfig, "--url is required")
	}
	if x.user == "" {
		return cfg, goerr.Wrap(ErrInvalidConfig, "--user is required")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Filter returns the filter context selected by flags
func (x *Connection) Filter() (model.FilterContext, error) {
	mode, err := types.ParseFilterMode(x.mode)
	if err != nil {
		return model.FilterContext{}, goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V("filter_mode", x.mode))
	}
	return model.FilterContext{
		Franchise: x.franchise,
		Mode:      mode,
		Assignee:  x.assignee,
	}.Normalized(), nil
}

// Identity picks the display name source: an explicit name, then the
// token, then the user
func (x *Connection) Identity() (interfaces.IdentityProvider, error) {
	switch {
	case x.name != "":
		return identity.Static(x.name), nil
	case x.token != "":
		return identity.FromToken(x.token)
	default:
		return identity.Static(x.user), nil
	}
}
