package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/boardsync/pkg/utils/logging"
)

// Close closes closer and logs the error, if any. A nil closer is
// ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}

// Write writes data to w and logs the error, if any. Used once a
// response header has been committed and nothing else can be reported.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("Failed to write", slog.Any("error", err))
	}
}
