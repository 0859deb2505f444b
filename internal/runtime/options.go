package runtime

import (
	"log/slog"
	"time"

	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObservers registers observers notified for every run.
func WithObservers(obs ...domain.Observer) EngineOption {
	return func(e *Engine) {
		e.observers = append(e.observers, obs...)
	}
}

// WithSink sets where final records go.
func WithSink(sink ports.Sink) EngineOption {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithStore enables checkpointing after every merged step.
func WithStore(store ports.StateStore) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithMaxSteps sets the step ceiling. Values below 1 are ignored.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithFlushTimeout bounds the final sink write.
func WithFlushTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.flushTimeout = d
		}
	}
}

// RunOption configures a single run.
type RunOption func(*run)

// WithMetadata sets the descriptive fields of the run's record (provider, model).
func WithMetadata(meta domain.RunMetadata) RunOption {
	return func(r *run) {
		r.meta = meta
	}
}

// WithRunObservers adds observers for this run only.
func WithRunObservers(obs ...domain.Observer) RunOption {
	return func(r *run) {
		r.observers = append(r.observers, obs...)
	}
}
