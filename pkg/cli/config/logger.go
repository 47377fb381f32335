package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Logger struct {
	level  string
	format string
	output string
}

func (x *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level [debug|info|warn|error]",
			Category:    "Logging",
			Value:       "info",
			Destination: &x.level,
			Sources:     cli.EnvVars("BOARDSYNC_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format [console|json]",
			Category:    "Logging",
			Value:       "console",
			Destination: &x.format,
			Sources:     cli.EnvVars("BOARDSYNC_LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:        "log-output",
			Usage:       "Log output [stdout|stderr|<file path>]",
			Category:    "Logging",
			Value:       "stderr",
			Destination: &x.output,
			Sources:     cli.EnvVars("BOARDSYNC_LOG_OUTPUT"),
		},
	}
}

func (x Logger) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("level", x.level),
		slog.String("format", x.format),
		slog.String("output", x.output),
	)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// redactor hides credentials: struct fields tagged masq:"secret" and
// any attribute whose name carries a token or the socket authorization
func redactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithTag("secret"),
		masq.WithFieldName("Authorization"),
		masq.WithFieldName("authorization"),
		masq.WithFieldName("Token"),
		masq.WithFieldName("token"),
		masq.WithFieldPrefix("secret"),
	)
}

// Configure installs the process-wide logger and returns a closer for
// the log file, if one was opened
func (x *Logger) Configure() (func(), error) {
	closer := func() {}

	level, ok := logLevels[strings.ToLower(x.level)]
	if !ok {
		return closer, goerr.Wrap(ErrInvalidConfig, "invalid log level", goerr.V("level", x.level))
	}

	var w io.Writer
	switch x.output {
	case "stdout", "-":
		w = os.Stdout
	case "stderr", "":
		w = os.Stderr
	default:
		// #nosec G304 - path is provided by CLI argument
		f, err := os.OpenFile(x.output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return closer, goerr.Wrap(err, "failed to open log file", goerr.V("path", x.output))
		}
		w = f
		closer = func() {
			if err := f.Close(); err != nil {
				slog.Default().Error("failed to close log file", "error", err)
			}
		}
	}

	handler, err := newHandler(x.format, w, level)
	if err != nil {
		closer()
		return func() {}, err
	}
	logging.SetDefault(slog.New(handler))
	return closer, nil
}

func newHandler(format string, w io.Writer, level slog.Level) (slog.Handler, error) {
	switch format {
	case "console", "":
		return clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithReplaceAttr(redactor()),
			clog.WithColor(w == os.Stdout || w == os.Stderr),
		), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: redactor(),
		}), nil
	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid log format", goerr.V("format", format))
	}
}
