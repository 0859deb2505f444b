package graph_test

import (
	"context"
	"testing"

	"github.com/rimraf-adi/socrates/internal/presentation/graph"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, s *domain.State) (domain.Update, error) {
	return domain.Update{}, nil
}

func loopGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := domain.NewGraph("loop", "draft", "wrap-up",
		domain.Node{ID: "draft", Run: noop, Next: "review"},
		domain.Node{ID: "review", Run: noop, Route: func(*domain.State) string { return "draft" },
			Targets: []string{"draft", "wrap-up"}},
		domain.Node{ID: "wrap-up", Run: noop, Next: domain.End},
	)
	require.NoError(t, err)
	return g
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(loopGraph(t), nil)

	for _, want := range []string{
		"graph TD\n",
		`draft(("draft"))`,
		`review{{"review"}}`,
		`wrap_up(["wrap-up"])`,
		"draft --> review",
		"review -.-> draft",
		"review -.-> wrap_up",
		"wrap_up --> end_",
		`end_(("end"))`,
		"divert to wrap-up",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	g := loopGraph(t)

	out := graph.GenerateMermaid(g, &graph.GraphOverlay{CurrentNode: "wrap-up"})
	assert.Contains(t, out, "classDef current")
	assert.Contains(t, out, "class wrap_up current;")

	out = graph.GenerateMermaid(g, &graph.GraphOverlay{Finished: true})
	assert.Contains(t, out, "class end_ current;")
}

func TestOverlayFromState(t *testing.T) {
	assert.Nil(t, graph.OverlayFromState(nil))

	s := domain.NewState("r", domain.ModeRefine, "task", 2)
	s.Next = domain.StepCritique
	assert.Equal(t, &graph.GraphOverlay{CurrentNode: domain.StepCritique}, graph.OverlayFromState(s))

	s.Next = ""
	s.Status = domain.StatusComplete
	assert.Equal(t, &graph.GraphOverlay{Finished: true}, graph.OverlayFromState(s))
}
