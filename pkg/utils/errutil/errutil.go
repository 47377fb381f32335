package errutil

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
)

// SentryConfig enables error reporting when DSN is set
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

var sentryEnabled bool

// InitSentry configures the global Sentry client. An empty DSN leaves
// reporting disabled and is not an error.
func InitSentry(cfg SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	}); err != nil {
		return goerr.Wrap(err, "failed to initialize sentry", goerr.V("environment", cfg.Environment))
	}
	sentryEnabled = true
	return nil
}

// FlushSentry waits for buffered events to be delivered
func FlushSentry(timeout time.Duration) {
	if sentryEnabled {
		sentry.Flush(timeout)
	}
}

// Handle logs the error with its goerr values and stack, reports it to
// Sentry when enabled and returns it unchanged.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)
	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	report(err, msg, ge)
	return err
}

// HandleHTTP logs the error and writes an HTTP error response. Only 5xx
// errors are reported to Sentry.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)
	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
			"values", ge.Values(),
		)
	} else {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
		)
	}

	if statusCode >= http.StatusInternalServerError {
		report(err, "HTTP error", ge)
	}
	http.Error(w, err.Error(), statusCode)
}

func report(err error, msg string, ge *goerr.Error) {
	if !sentryEnabled {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("message", msg)
		if ge != nil {
			values := sentry.Context{}
			for k, v := range ge.Values() {
				values[k] = v
			}
			scope.SetContext("goerr", values)
		}
		hub.CaptureException(err)
	})
}
