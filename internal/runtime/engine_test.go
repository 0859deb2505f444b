package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rimraf-adi/socrates/internal/runtime"
	"github.com/rimraf-adi/socrates/internal/testutils"
	"github.com/rimraf-adi/socrates/pkg/adapters/memory"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func refineGraph(t *testing.T, gen *testutils.Generator) *domain.Graph {
	t.Helper()
	g, err := steps.RefineGraph(steps.New(steps.Config{Generator: gen, Searcher: testutils.NewSearcher()}), false)
	require.NoError(t, err)
	return g
}

func researchGraph(t *testing.T, gen *testutils.Generator, searcher *testutils.Searcher) *domain.Graph {
	t.Helper()
	g, err := steps.ResearchGraph(steps.New(steps.Config{Generator: gen, Searcher: searcher}))
	require.NoError(t, err)
	return g
}

func TestRun_RefinePhotosynthesis(t *testing.T) {
	gen := testutils.NewGenerator("").
		On("Review the response", "critique 1", "critique 2").
		On("Revise your previous response", "draft 2").
		On("Write a complete response", "draft 1")
	sink := memory.NewSink()
	rec := &testutils.Recorder{}
	engine := runtime.NewEngine(runtime.WithSink(sink), runtime.WithObservers(rec))

	s := domain.NewState("run-1", domain.ModeRefine, "Explain photosynthesis", 2)
	out, err := engine.Run(context.Background(), refineGraph(t, gen), s)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusComplete, out.State.Status)
	assert.Equal(t, 2, out.State.Iteration)
	require.Len(t, out.State.History, 2)
	assert.Equal(t, "draft 1", out.State.History[0].Artifact)
	assert.Equal(t, "draft 2", out.State.History[1].Artifact)
	assert.Equal(t, "draft 2", out.Output)
	assert.Empty(t, out.Warnings)

	require.NotNil(t, out.Record)
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Metadata.Iterations)
	assert.Contains(t, records[0].Document, "draft 2")

	assert.Equal(t, []string{
		domain.StepGenerate, domain.StepCritique,
		domain.StepGenerate, domain.StepCritique,
		domain.StepFinalize,
	}, rec.Steps())

	events := rec.Events()
	assert.Equal(t, domain.EventStart, events[0].Type)
	assert.Equal(t, domain.EventComplete, events[len(events)-1].Type)
	// Input state is untouched.
	assert.Equal(t, 0, s.Iteration)
}

func TestRun_MalformedPlanStillCompletes(t *testing.T) {
	gen := testutils.NewGenerator("").
		On("Break the research query", "```json\n{\"sub_questions\": [\"a\", \n```").
		On("Answer the research question", "X and Y differ.").
		On("Write the final report", "# X vs Y")
	searcher := testutils.NewSearcher(domain.SearchResult{Title: "X", URL: "https://x"})
	rec := &testutils.Recorder{}

	out, err := runtime.NewEngine(runtime.WithObservers(rec)).
		Run(context.Background(), researchGraph(t, gen, searcher), domain.NewState("run-2", domain.ModeResearch, "Compare X vs Y", 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"Compare X vs Y"}, out.State.PendingItems)
	assert.Len(t, out.State.History, 1)
	assert.Equal(t, "# X vs Y", out.Output)
	assert.Equal(t, []string{
		domain.StepPlan, domain.StepSearch, domain.StepAnalyze, domain.StepSynthesize,
	}, rec.Steps())
	assert.Equal(t, []string{"Compare X vs Y"}, searcher.Queries())
}

func TestRun_CancelMidGeneration(t *testing.T) {
	gen := testutils.NewGenerator("").Block("Write a complete response")
	sink := memory.NewSink()
	rec := &testutils.Recorder{}
	engine := runtime.NewEngine(runtime.WithSink(sink), runtime.WithObservers(rec))

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	out, err := engine.Run(ctx, refineGraph(t, gen), domain.NewState("run-3", domain.ModeRefine, "Explain photosynthesis", 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunInterrupted)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, out)
	assert.Equal(t, domain.StatusInterrupted, out.State.Status)
	assert.Empty(t, out.State.History)
	assert.Empty(t, out.Output)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].Metadata.Iterations)
	assert.Equal(t, domain.StatusInterrupted, records[0].Metadata.Status)
	assert.NotEmpty(t, records[0].Metadata.Error)

	events := rec.Events()
	last := events[len(events)-1]
	assert.Equal(t, domain.EventError, last.Type)
	assert.Equal(t, domain.StepGenerate, last.Step)
}

func TestRun_StepErrorFlushesPartialProgress(t *testing.T) {
	boom := fmt.Errorf("%w: 401 unauthorized", domain.ErrBackend)
	gen := testutils.NewGenerator("").
		On("Review the response", "critique").
		Fail("Revise your previous response", boom).
		On("Write a complete response", "draft 1")
	sink := memory.NewSink()

	out, err := runtime.NewEngine(runtime.WithSink(sink)).
		Run(context.Background(), refineGraph(t, gen), domain.NewState("run-4", domain.ModeRefine, "t", 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunInterrupted)
	assert.ErrorIs(t, err, domain.ErrBackend)

	var stepErr *domain.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, domain.StepGenerate, stepErr.Step)

	assert.Equal(t, domain.StatusFailed, out.State.Status)
	assert.Len(t, out.State.History, 1)
	assert.Equal(t, "draft 1", out.Output)
	require.Len(t, sink.Records(), 1)
}

func TestRun_AlwaysContinueHitsCeiling(t *testing.T) {
	verdicts := make([]string, 20)
	for i := range verdicts {
		verdicts[i] = fmt.Sprintf(`{"is_sufficient": false, "coverage_score": 0.1, "follow_up_queries": ["f%d-a", "f%d-b", "f%d-c"]}`, i, i, i)
	}
	gen := testutils.NewGenerator("answer").
		On("Break the research query", `{"query_type":"exploratory","sub_questions":["a","b"]}`).
		On("Judge whether", verdicts...).
		On("Write the final report", "report")
	s := domain.NewState("run-5", domain.ModeResearch, "open topic", 0)
	s.Depth = domain.DepthExhaustive

	out, err := runtime.NewEngine(runtime.WithMaxSteps(12)).
		Run(context.Background(), researchGraph(t, gen, testutils.NewSearcher()), s)
	require.NoError(t, err)

	assert.Equal(t, 12, out.State.Steps)
	assert.Equal(t, domain.StatusComplete, out.State.Status)
	assert.True(t, strings.HasPrefix(out.Output, "report"), out.Output)
	assert.LessOrEqual(t, out.State.Iteration, out.State.MaxIterations)
	assert.Len(t, out.State.History, out.State.Iteration)
	require.NotEmpty(t, out.Warnings)
	assert.ErrorIs(t, out.Warnings[0], domain.ErrStepCeiling)
	assert.ErrorIs(t, out.Warnings[0], domain.ErrBudgetExhausted)
}

func TestRun_EmptySearchStillSynthesizes(t *testing.T) {
	gen := testutils.NewGenerator("").
		On("Break the research query", `{"sub_questions":["a","b"]}`).
		On("Answer the research question", "from memory").
		Fail("Write the final report", domain.ErrBackend)

	out, err := runtime.NewEngine().
		Run(context.Background(), researchGraph(t, gen, testutils.NewSearcher()), domain.NewState("run-6", domain.ModeResearch, "q", 0))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusComplete, out.State.Status)
	assert.NotEmpty(t, out.Output)
	assert.Contains(t, out.Output, "No external sources")
	assert.Len(t, out.State.History, 2)
}

func TestRun_PersistenceFailureIsWarning(t *testing.T) {
	gen := testutils.NewGenerator("text")
	engine := runtime.NewEngine(runtime.WithSink(testutils.FailingSink{Err: errors.New("disk full")}))

	out, err := engine.Run(context.Background(), refineGraph(t, gen), domain.NewState("run-7", domain.ModeRefine, "t", 1))
	require.NoError(t, err)
	assert.Equal(t, "text", out.Output)
	assert.Nil(t, out.Record)
	require.Len(t, out.Warnings, 1)
	assert.ErrorIs(t, out.Warnings[0], domain.ErrPersistence)
}

func TestRun_CheckpointAndResume(t *testing.T) {
	store := memory.NewStore()
	g := refineGraph(t, testutils.NewGenerator("").
		On("Review the response", "critique").
		Fail("Revise your previous response", domain.ErrBackend).
		On("Write a complete response", "draft 1"))

	_, err := runtime.NewEngine(runtime.WithStore(store)).
		Run(context.Background(), g, domain.NewState("run-8", domain.ModeRefine, "t", 2))
	require.ErrorIs(t, err, domain.ErrRunInterrupted)

	saved, err := store.Load(context.Background(), "run-8")
	require.NoError(t, err)
	assert.False(t, saved.Status.Terminal())
	assert.Equal(t, domain.StepGenerate, saved.Next)
	assert.Equal(t, 2, saved.Steps)

	rec := &testutils.Recorder{}
	g = refineGraph(t, testutils.NewGenerator("").
		On("Review the response", "critique 2").
		On("Revise your previous response", "draft 2"))
	out, err := runtime.NewEngine(runtime.WithStore(store), runtime.WithObservers(rec)).
		Run(context.Background(), g, saved)
	require.NoError(t, err)

	assert.Equal(t, "draft 2", out.Output)
	assert.Len(t, out.State.History, 2)
	assert.Equal(t, 5, out.State.Steps)
	assert.Equal(t, []string{domain.StepGenerate, domain.StepCritique, domain.StepFinalize}, rec.Steps())

	final, err := store.Load(context.Background(), "run-8")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, final.Status)

	_, err = runtime.NewEngine().Run(context.Background(), g, final)
	assert.ErrorIs(t, err, domain.ErrRunTerminal)
}

func TestRun_PanickingStepAndObserver(t *testing.T) {
	g, err := domain.NewGraph("panics", "boom", "",
		domain.Node{ID: "boom", Run: func(ctx context.Context, s *domain.State) (domain.Update, error) {
			panic("kaboom")
		}},
	)
	require.NoError(t, err)
	bad := domain.ObserverFunc(func(ctx context.Context, e domain.Event) { panic("observer") })

	out, err := runtime.NewEngine(runtime.WithObservers(bad)).
		Run(context.Background(), g, domain.NewState("run-9", domain.ModeRefine, "t", 1))
	require.ErrorIs(t, err, domain.ErrRunInterrupted)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, domain.StatusFailed, out.State.Status)
}

func TestRun_InvariantViolationFails(t *testing.T) {
	g, err := domain.NewGraph("bad", "rewind", "",
		domain.Node{ID: "rewind", Run: func(ctx context.Context, s *domain.State) (domain.Update, error) {
			return domain.Update{Iteration: domain.Ptr(1)}, nil
		}},
	)
	require.NoError(t, err)

	_, err = runtime.NewEngine().Run(context.Background(), g, domain.NewState("run-10", domain.ModeRefine, "t", 1))
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestRun_ConcurrentRunsAreIsolated(t *testing.T) {
	engine := runtime.NewEngine()
	results := make(chan string, 4)
	for i := range 4 {
		g := refineGraph(t, testutils.NewGenerator(fmt.Sprintf("output %d", i)))
		go func() {
			out, err := engine.Run(context.Background(), g, domain.NewState(fmt.Sprintf("r%d", i), domain.ModeRefine, "t", 2))
			if err != nil {
				results <- err.Error()
				return
			}
			results <- out.Output
		}()
	}
	got := map[string]bool{}
	for range 4 {
		got[<-results] = true
	}
	for i := range 4 {
		assert.True(t, got[fmt.Sprintf("output %d", i)])
	}
}
