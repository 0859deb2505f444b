package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/rimraf-adi/socrates/internal/presentation/tui"
	"github.com/rimraf-adi/socrates/internal/textutil"
)

// ListHistory prints recorded runs, newest first.
func (a *App) ListHistory(ctx context.Context, limit int, asJSON bool) error {
	list, err := a.Sink.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing history: %w", err)
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	if asJSON {
		enc := json.NewEncoder(a.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.Stdout, "No records found.")
		return nil
	}

	tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODE\tSTATUS\tITER\tSOURCES\tQUERY")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.Name, r.Mode, r.Status, r.Iterations, r.SourceCount, r.Query)
	}
	return tw.Flush()
}

// ShowHistory prints the document of one record.
func (a *App) ShowHistory(ctx context.Context, name string, asJSON bool) error {
	rec, err := a.Sink.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("error loading record '%s': %w", name, err)
	}
	if asJSON {
		enc := json.NewEncoder(a.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	out, err := tui.NewRenderer(a.Stdout)(rec.Document)
	if err != nil {
		out = rec.Document
	}
	fmt.Fprintln(a.Stdout, out)
	return nil
}

// DeleteHistory removes records. It reports every failure but keeps going.
func (a *App) DeleteHistory(ctx context.Context, names []string) error {
	failed := 0
	for _, name := range names {
		if err := a.Sink.Delete(ctx, name); err != nil {
			fmt.Fprintf(a.Stderr, "Error removing '%s': %v\n", name, err)
			failed++
			continue
		}
		fmt.Fprintf(a.Stdout, "Removed record '%s'\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records could not be removed", failed, len(names))
	}
	return nil
}

// ListRuns prints checkpointed runs with their status.
func (a *App) ListRuns(ctx context.Context) error {
	ids, err := a.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing runs: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(a.Stdout, "No checkpointed runs found.")
		return nil
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTATUS\tSTEPS\tNEXT\tTASK")
	for _, id := range ids {
		s, err := a.Store.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t%v\t\t\t\n", id, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", id, s.Mode, s.Status, s.Steps, s.Next, textutil.Truncate(s.Task, 60))
	}
	return tw.Flush()
}

// Models prints the configured models and providers.
func (a *App) Models() {
	fmt.Fprintf(a.Stdout, "Default provider: %s\n", a.Config.Provider)
	fmt.Fprintln(a.Stdout, "Providers:")
	for _, p := range a.Engine.Providers() {
		fmt.Fprintf(a.Stdout, "  - %s\n", p)
	}
	fmt.Fprintln(a.Stdout, "Models:")
	for _, m := range a.Config.Models {
		fmt.Fprintf(a.Stdout, "  - %s\n", m)
	}
}
