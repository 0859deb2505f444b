package socrates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/internal/runtime"
	"github.com/rimraf-adi/socrates/pkg/adapters/llm"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/rimraf-adi/socrates/pkg/session"
	"github.com/rimraf-adi/socrates/pkg/steps"
	"github.com/spf13/afero"
)

// Version is the library version reported by the CLI and the service.
const Version = "0.4.0"

// ErrInvalidRequest reports a request that cannot start a run.
var ErrInvalidRequest = errors.New("invalid request")

// Request starts a run.
type Request struct {
	// Task is the refine task or the research query.
	Task string
	// FilePath, if set, is read and used as the task text.
	FilePath string
	// MaxIterations is the refine cycle budget. For research it overrides
	// the budget of the depth preset.
	MaxIterations int
	// Depth is a research preset: quick, standard, deep or exhaustive.
	// Empty lets the planner choose.
	Depth string
	// Provider and Model override the engine defaults for this run only.
	Provider string
	Model    string
	// UseTools makes refine drafts go through the tool loop.
	UseTools bool
	// RunID is generated when empty.
	RunID string
}

// Result is what a run produced. It is returned even when the run failed,
// in which case it carries the partial state.
type Result struct {
	RunID    string
	Output   string
	State    *domain.State
	Record   *domain.RecordRef
	Warnings []error
	Provider string
	Model    string
}

// Engine starts, resumes and records runs. It is safe for concurrent use;
// each run captures its own configuration when it starts.
type Engine struct {
	providers       map[string]llm.ProviderConfig
	defaultProvider string
	newGenerator    func(llm.ProviderConfig) (ports.Generator, error)
	generator       ports.Generator

	searcher  ports.Searcher
	sink      ports.Sink
	store     ports.StateStore
	locker    ports.DistributedLocker
	observers []domain.Observer
	logger    *slog.Logger
	fs        afero.Fs
	maxSteps  int

	runtime  *runtime.Engine
	sessions *session.Manager
}

// runConfig is the per-run snapshot of backend selection.
type runConfig struct {
	provider  string
	model     string
	generator ports.Generator
}

// New creates an engine. At least one of WithProvider or WithGenerator is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		providers:    make(map[string]llm.ProviderConfig),
		newGenerator: llm.NewGenerator,
		logger:       logging.NewNop(),
		maxSteps:     runtime.DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.generator == nil && len(e.providers) == 0 {
		return nil, fmt.Errorf("%w: no generation backend configured", ErrInvalidRequest)
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}

	rtOpts := []runtime.EngineOption{
		runtime.WithLogger(e.logger),
		runtime.WithObservers(e.observers...),
		runtime.WithMaxSteps(e.maxSteps),
	}
	if e.sink != nil {
		rtOpts = append(rtOpts, runtime.WithSink(e.sink))
	}
	if e.store != nil {
		rtOpts = append(rtOpts, runtime.WithStore(e.store))
		sessOpts := []session.Option{session.WithLogger(e.logger)}
		if e.locker != nil {
			sessOpts = append(sessOpts, session.WithLocker(e.locker))
		}
		e.sessions = session.NewManager(e.store, sessOpts...)
	}
	e.runtime = runtime.NewEngine(rtOpts...)
	return e, nil
}

// Sink returns the record sink, or nil.
func (e *Engine) Sink() ports.Sink {
	return e.sink
}

// Providers returns the names of the configured providers.
func (e *Engine) Providers() []string {
	names := make([]string, 0, len(e.providers))
	for _, p := range llm.Providers() {
		if _, ok := e.providers[p]; ok {
			names = append(names, p)
		}
	}
	return names
}

// Refine runs the generator/critic loop.
func (e *Engine) Refine(ctx context.Context, req Request, obs ...domain.Observer) (*Result, error) {
	if req.MaxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be at least 1", ErrInvalidRequest)
	}
	return e.start(ctx, domain.ModeRefine, req, obs)
}

// Research runs the plan/search/analyze loop.
func (e *Engine) Research(ctx context.Context, req Request, obs ...domain.Observer) (*Result, error) {
	if req.MaxIterations < 0 {
		return nil, fmt.Errorf("%w: max iterations must not be negative", ErrInvalidRequest)
	}
	if req.Depth != "" && !domain.IsDepth(req.Depth) {
		return nil, fmt.Errorf("%w: unknown depth %q", ErrInvalidRequest, req.Depth)
	}
	return e.start(ctx, domain.ModeResearch, req, obs)
}

func (e *Engine) start(ctx context.Context, mode domain.Mode, req Request, obs []domain.Observer) (*Result, error) {
	task, err := e.taskText(req)
	if err != nil {
		return nil, err
	}
	rc, err := e.resolve(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	s := domain.NewState(runID, mode, task, req.MaxIterations)
	s.FilePath = req.FilePath
	s.UseTools = mode == domain.ModeRefine && req.UseTools
	if mode == domain.ModeResearch && req.Depth != "" {
		s.Depth = strings.ToLower(strings.TrimSpace(req.Depth))
	}

	g, err := e.graph(mode, rc, s.UseTools)
	if err != nil {
		return nil, err
	}

	e.logger.Info("run requested", "run_id", runID, "mode", mode, "provider", rc.provider, "model", rc.model)
	if e.sessions == nil {
		return e.execute(ctx, g, s, rc, obs)
	}

	var res *Result
	lockErr := e.sessions.WithLock(ctx, runID, func(ctx context.Context) error {
		res, err = e.execute(ctx, g, s, rc, obs)
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return res, err
}

// Resume continues a checkpointed run that has not finished. The run uses
// the engine's default backend and the tool mode the run started with.
func (e *Engine) Resume(ctx context.Context, runID string, obs ...domain.Observer) (*Result, error) {
	if e.sessions == nil {
		return nil, fmt.Errorf("%w: resume needs a checkpoint store", ErrInvalidRequest)
	}
	rc, err := e.resolve("", "")
	if err != nil {
		return nil, err
	}

	var res *Result
	var runErr error
	err = e.sessions.Resume(ctx, runID, func(ctx context.Context, s *domain.State) error {
		g, err := e.graph(s.Mode, rc, s.UseTools)
		if err != nil {
			return err
		}
		e.logger.Info("run resumed", "run_id", runID, "next", s.Next, "steps", s.Steps)
		res, runErr = e.execute(ctx, g, s, rc, obs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, runErr
}

// Runs lists checkpointed run IDs.
func (e *Engine) Runs(ctx context.Context) ([]string, error) {
	if e.sessions == nil {
		return []string{}, nil
	}
	return e.sessions.List(ctx)
}

func (e *Engine) execute(ctx context.Context, g *domain.Graph, s *domain.State, rc runConfig, obs []domain.Observer) (*Result, error) {
	meta := domain.RunMetadata{Provider: rc.provider, Model: rc.model}
	out, err := e.runtime.Run(ctx, g, s, runtime.WithMetadata(meta), runtime.WithRunObservers(obs...))
	res := &Result{
		RunID:    s.RunID,
		Provider: rc.provider,
		Model:    rc.model,
	}
	if out != nil {
		res.Output = out.Output
		res.State = out.State
		res.Record = out.Record
		res.Warnings = out.Warnings
	}
	return res, err
}

func (e *Engine) graph(mode domain.Mode, rc runConfig, useTools bool) (*domain.Graph, error) {
	return buildGraph(steps.New(steps.Config{
		Generator: rc.generator,
		Searcher:  e.searcher,
		Model:     rc.model,
		Logger:    e.logger,
		Fs:        afero.NewReadOnlyFs(e.fs),
	}), mode, useTools)
}

// Graph returns the shape of a workflow for inspection. Its steps have no
// backend and must not be run.
func Graph(mode domain.Mode, useTools bool) (*domain.Graph, error) {
	return buildGraph(steps.New(steps.Config{}), mode, useTools)
}

func buildGraph(st *steps.Steps, mode domain.Mode, useTools bool) (*domain.Graph, error) {
	switch mode {
	case domain.ModeRefine:
		return steps.RefineGraph(st, useTools)
	case domain.ModeResearch:
		return steps.ResearchGraph(st)
	}
	return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
}

// resolve snapshots the backend for one run.
func (e *Engine) resolve(provider, model string) (runConfig, error) {
	if provider == "" && e.generator != nil {
		return runConfig{provider: "custom", model: model, generator: e.generator}, nil
	}

	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = e.defaultProvider
	}
	pc, ok := e.providers[name]
	if !ok {
		return runConfig{}, fmt.Errorf("%w: provider %q is not configured", ErrInvalidRequest, name)
	}
	if model != "" {
		pc.Model = model
	}
	gen, err := e.newGenerator(pc)
	if err != nil {
		return runConfig{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	// The model is already bound into the generator.
	return runConfig{provider: name, model: pc.Model, generator: gen}, nil
}

func (e *Engine) taskText(req Request) (string, error) {
	if req.FilePath == "" {
		if strings.TrimSpace(req.Task) == "" {
			return "", fmt.Errorf("%w: task is empty", ErrInvalidRequest)
		}
		return strings.TrimSpace(req.Task), nil
	}
	data, err := afero.ReadFile(e.fs, req.FilePath)
	if err != nil {
		return "", fmt.Errorf("%w: reading task file: %w", ErrInvalidRequest, err)
	}
	task := strings.TrimSpace(string(data))
	if task == "" {
		return "", fmt.Errorf("%w: task file %s is empty", ErrInvalidRequest, req.FilePath)
	}
	return task, nil
}
