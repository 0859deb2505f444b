package cli

import (
	"context"
	"fmt"

	"github.com/rimraf-adi/socrates"
	"github.com/rimraf-adi/socrates/internal/presentation/graph"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Graph prints a workflow as a Mermaid flowchart. With runID the mode is
// taken from the checkpoint and its next step is highlighted.
func (a *App) Graph(ctx context.Context, mode string, runID string, useTools bool) error {
	var overlay *graph.GraphOverlay
	if runID != "" {
		s, err := a.Store.Load(ctx, runID)
		if err != nil {
			return fmt.Errorf("error loading run %s: %w", runID, err)
		}
		mode = string(s.Mode)
		overlay = graph.OverlayFromState(s)
	}

	g, err := socrates.Graph(domain.Mode(mode), useTools)
	if err != nil {
		return err
	}
	fmt.Fprint(a.Stdout, graph.GenerateMermaid(g, overlay))
	return nil
}
