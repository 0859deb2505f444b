package socrates

import (
	"log/slog"

	"github.com/rimraf-adi/socrates/pkg/adapters/llm"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/spf13/afero"
)

// Option configures an Engine.
type Option func(*Engine)

// WithProvider registers a named backend. The first one registered becomes
// the default unless WithDefaultProvider says otherwise.
func WithProvider(cfg llm.ProviderConfig) Option {
	return func(e *Engine) {
		if cfg.Name == "" {
			cfg.Name = llm.ProviderLMStudio
		}
		if e.defaultProvider == "" {
			e.defaultProvider = cfg.Name
		}
		e.providers[cfg.Name] = cfg
	}
}

// WithDefaultProvider selects which registered provider runs use by default.
func WithDefaultProvider(name string) Option {
	return func(e *Engine) {
		e.defaultProvider = name
	}
}

// WithGenerator uses gen for runs that do not ask for a provider.
func WithGenerator(gen ports.Generator) Option {
	return func(e *Engine) {
		e.generator = gen
	}
}

// WithGeneratorFactory replaces how provider configurations become generators.
func WithGeneratorFactory(fn func(llm.ProviderConfig) (ports.Generator, error)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newGenerator = fn
		}
	}
}

// WithSearcher sets the web search collaborator. Without one every search
// returns nothing.
func WithSearcher(s ports.Searcher) Option {
	return func(e *Engine) {
		e.searcher = s
	}
}

// WithSink sets where finished and partial runs are recorded.
func WithSink(s ports.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithStore enables checkpointing and Resume.
func WithStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker serializes runs with the same ID across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithObservers attaches observers to every run.
func WithObservers(obs ...domain.Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, obs...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxSteps overrides the absolute step ceiling.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithFs sets the filesystem used for task files and the read_file tool.
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) {
		e.fs = fs
	}
}
