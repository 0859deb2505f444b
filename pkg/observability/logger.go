package observability

import (
	"context"
	"log/slog"

	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Logger is an Observer that writes one structured line per event.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a logging observer.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// OnEvent implements domain.Observer.
func (l *Logger) OnEvent(ctx context.Context, e domain.Event) {
	attrs := []any{
		"run_id", e.RunID,
		"mode", e.Mode,
		"status", e.Status,
		"iteration", e.Iteration,
		"max_iterations", e.MaxIterations,
	}
	if e.Step != "" {
		attrs = append(attrs, "step", e.Step)
	}
	if len(e.PendingItems) > 0 {
		attrs = append(attrs, "cursor", e.Cursor, "pending", len(e.PendingItems))
	}
	if e.Duration > 0 {
		attrs = append(attrs, "duration", e.Duration)
	}

	switch e.Type {
	case domain.EventError:
		l.logger.ErrorContext(ctx, e.Message, append(attrs, "err", e.Error)...)
	case domain.EventProgress:
		l.logger.InfoContext(ctx, e.Message, attrs...)
	default:
		l.logger.DebugContext(ctx, e.Message, attrs...)
	}
}
