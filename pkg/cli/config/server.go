package config

import (
	"log/slog"

	"github.com/urfave/cli/v3"
)

// Server configures the optional HTTP API of the watch command
type Server struct {
	addr  string
	token string
}

func (x *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Serve the board HTTP API on this address (disabled when empty)",
			Category:    "HTTP",
			Destination: &x.addr,
			Sources:     cli.EnvVars("BOARDSYNC_ADDR"),
		},
		&cli.StringFlag{
			Name:        "api-token",
			Usage:       "Bearer token required by the HTTP API",
			Category:    "HTTP",
			Destination: &x.token,
			Sources:     cli.EnvVars("BOARDSYNC_API_TOKEN"),
		},
	}
}

func (x Server) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", x.addr),
		slog.Int("token.len", len(x.token)),
	)
}

func (x *Server) Enabled() bool { return x.addr != "" }

func (x *Server) Addr() string { return x.addr }

func (x *Server) Token() string { return x.token }
