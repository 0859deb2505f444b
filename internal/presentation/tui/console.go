package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Console prints one line per event. It implements domain.Observer.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool

	step  lipgloss.Style
	dim   lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	queue lipgloss.Style
}

// NewConsole writes to w. Verbose consoles also list the pending research items.
func NewConsole(w io.Writer, verbose bool) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:       w,
		verbose: verbose,
		step:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#a78bfa")),
		dim:     r.NewStyle().Faint(true),
		ok:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("#22c55e")),
		fail:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444")),
		queue:   r.NewStyle().Foreground(lipgloss.Color("#94a3b8")).PaddingLeft(4),
	}
}

// OnEvent implements domain.Observer.
func (c *Console) OnEvent(ctx context.Context, e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case domain.EventStart:
		fmt.Fprintf(c.w, "%s %s\n", c.step.Render("▶"), e.Message)
	case domain.EventProgress:
		counter := fmt.Sprintf("%d/%d", e.Iteration, e.MaxIterations)
		fmt.Fprintf(c.w, "%s %s %s %s\n",
			c.step.Render(fmt.Sprintf("[%s]", e.Step)),
			e.Message,
			c.dim.Render(counter),
			c.dim.Render(e.Duration.Round(time.Millisecond).String()),
		)
		if c.verbose && (e.Step == domain.StepPlan || e.Step == domain.StepEvaluateCoverage) {
			for i, item := range e.PendingItems {
				fmt.Fprintln(c.w, c.queue.Render(fmt.Sprintf("%d. %s", i+1, item)))
			}
		}
	case domain.EventComplete:
		fmt.Fprintf(c.w, "%s %s\n", c.ok.Render("✔"), e.Message)
	case domain.EventError:
		fmt.Fprintf(c.w, "%s %s: %s\n", c.fail.Render("✘"), e.Message, strings.TrimSpace(e.Error))
	}
}
