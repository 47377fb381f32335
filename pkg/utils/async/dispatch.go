package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
)

// Dispatch runs handler in a new goroutine named name. The goroutine gets
// a context detached from ctx's cancellation that keeps its logger and
// values. Errors and panics are logged, never propagated.
func Dispatch(ctx context.Context, name string, handler func(ctx context.Context) error) {
	bgCtx := context.WithoutCancel(ctx)
	logger := logging.From(ctx).With("task", name)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in async task", "panic", r)
			}
		}()

		if err := handler(bgCtx); err != nil {
			logger.Error("async task failed", "error", goerr.Unwrap(err))
		}
	}()
}
