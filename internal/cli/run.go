package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/presentation/tui"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/spf13/afero"
)

// RunOptions control how a run is presented.
type RunOptions struct {
	// Output, if set, receives the final markdown.
	Output string
	// JSON prints a machine readable summary instead of the rendered output.
	JSON bool
	// Quiet suppresses the banner and step progress.
	Quiet   bool
	Verbose bool
}

// Summary is what --json prints.
type Summary struct {
	RunID      string            `json:"run_id"`
	Mode       domain.Mode       `json:"mode"`
	Status     domain.Status     `json:"status"`
	Iterations int               `json:"iterations"`
	Output     string            `json:"output"`
	Record     *domain.RecordRef `json:"record,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Model      string            `json:"model,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Refine runs the generator/critic loop. A task naming an existing file is
// read from that file.
func (a *App) Refine(ctx context.Context, req socrates.Request, opts RunOptions) error {
	if req.FilePath == "" && req.Task != "" {
		if ok, _ := afero.Exists(a.Fs, req.Task); ok {
			req.FilePath, req.Task = req.Task, ""
		}
	}
	return a.present(ctx, opts, func(ctx context.Context, obs ...domain.Observer) (*socrates.Result, error) {
		return a.Engine.Refine(ctx, req, obs...)
	})
}

// Research runs a research query.
func (a *App) Research(ctx context.Context, req socrates.Request, opts RunOptions) error {
	return a.present(ctx, opts, func(ctx context.Context, obs ...domain.Observer) (*socrates.Result, error) {
		return a.Engine.Research(ctx, req, obs...)
	})
}

// Resume continues an unfinished run.
func (a *App) Resume(ctx context.Context, runID string, opts RunOptions) error {
	return a.present(ctx, opts, func(ctx context.Context, obs ...domain.Observer) (*socrates.Result, error) {
		return a.Engine.Resume(ctx, runID, obs...)
	})
}

type runFunc func(ctx context.Context, obs ...domain.Observer) (*socrates.Result, error)

func (a *App) present(ctx context.Context, opts RunOptions, run runFunc) error {
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	var obs []domain.Observer
	if !opts.Quiet && !opts.JSON {
		if tui.IsTerminal(a.Stderr) {
			tui.PrintBanner(a.Stderr, socrates.Version)
		}
		obs = append(obs, tui.NewConsole(a.Stderr, opts.Verbose))
	}

	res, runErr := run(sigCtx, obs...)
	if res == nil {
		return runErr
	}

	if opts.Output != "" && res.Output != "" {
		if err := a.writeOutput(opts.Output, res.Output); err != nil {
			a.Logger.Error("failed to write output file", "path", opts.Output, "error", err)
		}
	}

	if opts.JSON {
		if err := a.printJSON(res, runErr); err != nil {
			return err
		}
	} else {
		a.printResult(res, runErr, sigCtx.Signal() != nil)
	}

	if runErr != nil && sigCtx.Signal() != nil {
		// Interrupted by the user: the partial result is saved, not a failure.
		return nil
	}
	return runErr
}

func (a *App) writeOutput(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := a.Fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(a.Fs, path, []byte(content+"\n"), 0o644)
}

func (a *App) printJSON(res *socrates.Result, runErr error) error {
	s := Summary{
		RunID:    res.RunID,
		Output:   res.Output,
		Record:   res.Record,
		Provider: res.Provider,
		Model:    res.Model,
	}
	if res.State != nil {
		s.Mode = res.State.Mode
		s.Status = res.State.Status
		s.Iterations = res.State.Iteration
	}
	for _, w := range res.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func (a *App) printResult(res *socrates.Result, runErr error, interrupted bool) {
	if res.Output != "" {
		out, err := tui.NewRenderer(a.Stdout)(res.Output)
		if err != nil {
			out = res.Output
		}
		fmt.Fprintln(a.Stdout, out)
	}

	for _, w := range res.Warnings {
		printSystemMessage(a.Stderr, "warning: %v", w)
	}
	switch {
	case interrupted:
		printSystemMessage(a.Stderr, "Interrupted. Partial result kept; resume with: socrates resume %s", res.RunID)
	case runErr != nil && errors.Is(runErr, domain.ErrRunInterrupted):
		printSystemMessage(a.Stderr, "Run stopped early; resume with: socrates resume %s", res.RunID)
	}
	if res.Record != nil {
		printSystemMessage(a.Stderr, "Saved to %s", res.Record.Location)
	}
}

func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
