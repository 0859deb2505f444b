// Package cli wires configuration, adapters and the engine for the
// socrates command and implements its commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/config"
	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/pkg/adapters/file"
	"github.com/rimraf-adi/socrates/pkg/adapters/redis"
	"github.com/rimraf-adi/socrates/pkg/adapters/searxng"
	"github.com/rimraf-adi/socrates/pkg/observability"
	"github.com/rimraf-adi/socrates/pkg/persistence/middleware"
	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/spf13/afero"
)

// Options are the global flags.
type Options struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Provider   string
	Model      string

	// Getenv defaults to os.Getenv.
	Getenv config.Getenv
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
	// EngineOptions are applied after the configured ones.
	EngineOptions []socrates.Option
}

// App is everything a command needs.
type App struct {
	Config   *config.Config
	Engine   *socrates.Engine
	Sink     ports.Sink
	Store    ports.StateStore
	Registry *prometheus.Registry
	Logger   *slog.Logger
	Fs       afero.Fs
	Stdout   io.Writer
	Stderr   io.Writer

	closers []io.Closer
}

// NewApp loads the configuration and builds the engine.
func NewApp(opts Options) (*App, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	path, explicit := opts.ConfigPath, opts.ConfigPath != ""
	if !explicit {
		path = config.DefaultPath(opts.Getenv)
	}
	cfg, err := config.Load(opts.Fs, path, explicit, opts.Getenv)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.Provider != "" {
		cfg.Provider = opts.Provider
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithFormat(opts.Stderr, level, logging.Format(cfg.Log.Format))

	app := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
		Fs:       opts.Fs,
		Stdout:   opts.Stdout,
		Stderr:   opts.Stderr,
	}

	sink := file.NewSink(opts.Fs, cfg.RecordsDir(), file.WithLogger(logger))
	app.Sink = sink

	engineOpts := []socrates.Option{
		socrates.WithLogger(logger),
		socrates.WithSink(sink),
		socrates.WithFs(opts.Fs),
		socrates.WithSearcher(searxng.New(cfg.SearxngURL, searxng.WithLogger(logger))),
		socrates.WithObservers(observability.NewLogger(logger)),
	}
	if cfg.MaxSteps > 0 {
		engineOpts = append(engineOpts, socrates.WithMaxSteps(cfg.MaxSteps))
	}
	for _, pc := range cfg.ProviderConfigs() {
		engineOpts = append(engineOpts, socrates.WithProvider(pc))
	}
	engineOpts = append(engineOpts, socrates.WithDefaultProvider(cfg.Provider))

	var store ports.StateStore
	if cfg.RedisURL != "" {
		rs, err := redis.New(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect checkpoint store: %w", err)
		}
		store = rs
		app.closers = append(app.closers, rs.Client())
		engineOpts = append(engineOpts, socrates.WithLocker(redis.NewLocker(rs.Client(), "")))
		logger.Debug("checkpoints in redis")
	} else {
		store = file.NewStore(opts.Fs, cfg.RunsDir())
		logger.Debug("checkpoints on disk", "dir", cfg.RunsDir())
	}

	ec, err := cfg.EncryptionConfig()
	if err != nil {
		app.Close()
		return nil, err
	}
	if ec != nil {
		seal, err := middleware.NewEncryptionMiddleware(*ec)
		if err != nil {
			app.Close()
			return nil, err
		}
		store = middleware.Chain(store, seal)
		logger.Debug("checkpoints sealed", "fallback_keys", len(ec.FallbackKeys))
	}
	app.Store = store
	engineOpts = append(engineOpts, socrates.WithStore(store))

	metrics, err := observability.NewMetrics(app.Registry)
	if err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, socrates.WithObservers(metrics))
	engineOpts = append(engineOpts, opts.EngineOptions...)

	engine, err := socrates.New(engineOpts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	app.Engine = engine
	return app, nil
}

// Close releases connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
