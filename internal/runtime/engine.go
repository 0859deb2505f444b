// Package runtime is the orchestrator: it runs step graphs, merges updates,
// routes, checkpoints and flushes records.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

const (
	// DefaultMaxSteps is the absolute number of steps a run may merge.
	DefaultMaxSteps = 64
	// DefaultFlushTimeout bounds persistence after the run's context is gone.
	DefaultFlushTimeout = 30 * time.Second
)

// Engine drives a graph one step at a time over immutable State snapshots.
// It is safe to run many graphs concurrently; runs share no mutable state.
type Engine struct {
	logger       *slog.Logger
	observers    []domain.Observer
	sink         ports.Sink
	store        ports.StateStore
	maxSteps     int
	flushTimeout time.Duration
}

// Outcome is what a run produced. It is returned even when the run fails.
type Outcome struct {
	State *domain.State
	// Output is the final artifact, or the latest draft of a partial run.
	Output   string
	Record   *domain.RecordRef
	Warnings []error
}

// NewEngine creates an engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:       logging.NewNop(),
		maxSteps:     DefaultMaxSteps,
		flushTimeout: DefaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxSteps returns the configured step ceiling.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

type run struct {
	graph     *domain.Graph
	meta      domain.RunMetadata
	observers []domain.Observer
	outcome   *Outcome
	logger    *slog.Logger
}

// Run executes g from s until the graph ends, the step ceiling is reached,
// a step fails or ctx is cancelled. A state with Next set resumes at that
// node; otherwise execution starts at the graph's entry.
//
// On failure or cancellation the last merged State is marked interrupted or
// failed, flushed through the sink and returned in the Outcome together with
// an error wrapping domain.ErrRunInterrupted.
func (e *Engine) Run(ctx context.Context, g *domain.Graph, s *domain.State, opts ...RunOption) (*Outcome, error) {
	if s.Status.Terminal() {
		return &Outcome{State: s, Output: s.Output()}, fmt.Errorf("%w: %s", domain.ErrRunTerminal, s.RunID)
	}

	r := &run{
		graph:     g,
		observers: append([]domain.Observer{}, e.observers...),
		outcome:   &Outcome{},
		logger:    e.logger.With("run_id", s.RunID, "graph", g.Name),
	}
	for _, opt := range opts {
		opt(r)
	}

	current := s
	nodeID := s.Next
	startMsg := "Run resumed at " + nodeID
	if nodeID == "" {
		nodeID = g.Entry
		startMsg = "Run started"
	}
	r.logger.Info("run starting", "node", nodeID, "steps", s.Steps)
	e.emit(ctx, r, domain.NewEvent(domain.EventStart, nodeID, current, startMsg))

	for nodeID != domain.End {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, r, current, nodeID, err)
		}

		if current.Steps >= e.maxSteps {
			r.logger.Warn("step ceiling reached", "max_steps", e.maxSteps, "node", nodeID)
			r.outcome.Warnings = append(r.outcome.Warnings, domain.ErrStepCeiling)
			break
		}
		if current.Steps == e.maxSteps-1 && g.Finalizer != "" && nodeID != g.Finalizer {
			r.logger.Warn("step ceiling near, finalizing", "max_steps", e.maxSteps, "skipped", nodeID)
			r.outcome.Warnings = append(r.outcome.Warnings,
				fmt.Errorf("%w: diverted from %s to %s", domain.ErrStepCeiling, nodeID, g.Finalizer))
			nodeID = g.Finalizer
		}

		node, ok := g.Node(nodeID)
		if !ok {
			return e.abort(ctx, r, current, nodeID, fmt.Errorf("%w: unknown node %q", domain.ErrInvariant, nodeID))
		}

		start := time.Now()
		update, err := safeRun(ctx, node, current)
		if err != nil {
			return e.abort(ctx, r, current, nodeID, &domain.StepError{Step: nodeID, Err: err})
		}

		next, err := domain.Apply(current, update)
		if err != nil {
			return e.abort(ctx, r, current, nodeID, &domain.StepError{Step: nodeID, Err: err})
		}
		next.Steps++
		next.Next = resolve(node, next)
		current = next

		ev := domain.NewEvent(domain.EventProgress, nodeID, current, update.Message)
		ev.Duration = time.Since(start)
		e.emit(ctx, r, ev)
		r.logger.Debug("step merged", "step", nodeID, "next", current.Next, "iteration", current.Iteration, "duration", ev.Duration)

		e.checkpoint(ctx, r, current)
		nodeID = current.Next
	}

	r.outcome.State = current
	r.outcome.Output = current.Output()
	e.persist(ctx, r, current)

	done := domain.NewEvent(domain.EventComplete, "", current, fmt.Sprintf("Run finished after %d steps", current.Steps))
	e.emit(ctx, r, done)
	r.logger.Info("run finished", "steps", current.Steps, "iteration", current.Iteration, "status", current.Status)
	return r.outcome, nil
}

// resolve picks the node after n: its route, then its static edge, then the end.
// Terminal states always end.
func resolve(n domain.Node, s *domain.State) string {
	switch {
	case s.Status.Terminal():
		return domain.End
	case n.Route != nil:
		return n.Route(s)
	case n.Next != "":
		return n.Next
	default:
		return domain.End
	}
}

func safeRun(ctx context.Context, n domain.Node, s *domain.State) (u domain.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in step %s: %v", n.ID, r)
		}
	}()
	return n.Run(ctx, s)
}

// abort marks the last good state, flushes it and reports the failure.
func (e *Engine) abort(ctx context.Context, r *run, last *domain.State, nodeID string, cause error) (*Outcome, error) {
	status := domain.StatusFailed
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		status = domain.StatusInterrupted
	}
	if !errors.Is(cause, domain.ErrRunInterrupted) {
		cause = fmt.Errorf("%w: %w", domain.ErrRunInterrupted, cause)
	}
	r.logger.Error("run aborted", "node", nodeID, "status", status, "error", cause)

	final := last
	if marked, err := domain.Apply(last, domain.Update{Status: status}); err == nil {
		final = marked
	}
	r.meta.Error = cause.Error()

	r.outcome.State = final
	r.outcome.Output = final.Output()
	e.persist(ctx, r, final)

	ev := domain.NewEvent(domain.EventError, nodeID, final, "Run stopped")
	ev.Error = cause.Error()
	e.emit(context.WithoutCancel(ctx), r, ev)
	return r.outcome, cause
}

// checkpoint saves the merged state. Failures are warnings.
func (e *Engine) checkpoint(ctx context.Context, r *run, s *domain.State) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(context.WithoutCancel(ctx), s.RunID, s); err != nil {
		r.logger.Warn("checkpoint failed", "error", err)
		r.outcome.Warnings = append(r.outcome.Warnings, fmt.Errorf("%w: checkpoint: %w", domain.ErrPersistence, err))
	}
}

// persist hands the record to the sink on a context that survives cancellation.
func (e *Engine) persist(ctx context.Context, r *run, s *domain.State) {
	if e.sink == nil {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.flushTimeout)
	defer cancel()

	ref, err := e.sink.Save(flushCtx, domain.NewRecord(s, r.meta))
	if err != nil {
		r.logger.Warn("record not saved", "error", err)
		r.outcome.Warnings = append(r.outcome.Warnings, fmt.Errorf("%w: %w", domain.ErrPersistence, err))
		return
	}
	r.outcome.Record = &ref
	r.logger.Info("record saved", "record", ref.Name, "location", ref.Location)
}

// emit delivers ev to every observer in order. A panicking observer is
// logged and skipped.
func (e *Engine) emit(ctx context.Context, r *run, ev domain.Event) {
	for _, o := range r.observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Warn("observer panicked", "event", ev.Type, "panic", p)
				}
			}()
			o.OnEvent(ctx, ev)
		}()
	}
}
