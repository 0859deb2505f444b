package steps_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rimraf-adi/socrates/internal/testutils"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/steps"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hit = domain.SearchResult{Title: "Chlorophyll", URL: "https://example.org/chl", Snippet: "absorbs light", Item: -1}

func apply(t *testing.T, s *domain.State, u domain.Update) *domain.State {
	t.Helper()
	next, err := domain.Apply(s, u)
	require.NoError(t, err)
	return next
}

func TestGenerate_UsesSearchContext(t *testing.T) {
	gen := testutils.NewGenerator("draft one")
	st := steps.New(steps.Config{Generator: gen, Searcher: testutils.NewSearcher(hit)})
	s := domain.NewState("r1", domain.ModeRefine, "Explain photosynthesis", 2)

	u, err := st.Generate(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusGenerated, u.Status)
	assert.Equal(t, "draft one", *u.CurrentOutput)
	require.Len(t, u.AppendResults, 1)
	assert.Equal(t, -1, u.AppendResults[0].Item)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Web context")
	assert.Contains(t, calls[0].Prompt, "Write a complete response")
	assert.InDelta(t, 0.5, calls[0].Temperature, 1e-9)
}

func TestGenerate_RefineCycleIncludesFeedback(t *testing.T) {
	gen := testutils.NewGenerator("draft two")
	st := steps.New(steps.Config{Generator: gen, Model: "m-override"})
	s := domain.NewState("r1", domain.ModeRefine, "task", 2)
	s = apply(t, s, domain.Update{
		CurrentOutput: domain.Ptr("draft one"),
		Feedback:      domain.Ptr("add examples"),
		Iteration:     domain.Ptr(1),
		AppendHistory: []domain.CycleRecord{{Index: 1}},
	})

	u, err := st.Generate(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, u.AppendResults)
	assert.Empty(t, *u.SearchContext)

	prompt := gen.Calls()[0].Prompt
	assert.Contains(t, prompt, "draft one")
	assert.Contains(t, prompt, "add examples")
	assert.NotContains(t, prompt, "Web context")
	assert.Equal(t, "m-override", gen.Calls()[0].Model)
}

func TestGenerate_BackendErrorPropagates(t *testing.T) {
	gen := testutils.NewGenerator("").Fail("Task:", domain.ErrBackend)
	st := steps.New(steps.Config{Generator: gen})

	_, err := st.Generate(context.Background(), domain.NewState("r1", domain.ModeRefine, "t", 1))
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestGenerateWithTools(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "notes.md", []byte("leaf\nstem\n"), 0o644))

	gen := testutils.NewGenerator("").
		On("Observation: 1: leaf", "Final Answer: plants use leaves").
		On("Observation:", `Action: read_file(path="notes.md")`).
		On("Task:", `Action: web_search(query="photosynthesis")`)
	st := steps.New(steps.Config{Generator: gen, Searcher: testutils.NewSearcher(hit), Fs: fs})

	u, err := st.GenerateWithTools(context.Background(), domain.NewState("r1", domain.ModeRefine, "Explain photosynthesis", 1))
	require.NoError(t, err)
	assert.Equal(t, "plants use leaves", *u.CurrentOutput)
	assert.Len(t, u.AppendResults, 1)
	assert.Contains(t, u.Message, "3 tool rounds")
}

func TestCritique_ClosesCycle(t *testing.T) {
	gen := testutils.NewGenerator("needs depth")
	st := steps.New(steps.Config{Generator: gen})
	s := domain.NewState("r1", domain.ModeRefine, "task", 2)
	s = apply(t, s, domain.Update{CurrentOutput: domain.Ptr("draft")})

	u, err := st.Critique(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)

	assert.Equal(t, 1, next.Iteration)
	assert.Equal(t, "needs depth", next.Feedback)
	require.Len(t, next.History, 1)
	assert.Equal(t, domain.CycleRecord{Index: 1, Artifact: "draft", Evaluation: "needs depth"}, next.History[0])
	assert.InDelta(t, 0.3, gen.Calls()[0].Temperature, 1e-9)
}

func TestFinalize(t *testing.T) {
	st := steps.New(steps.Config{Generator: testutils.NewGenerator("")})
	s := domain.NewState("r1", domain.ModeRefine, "task", 1)
	s = apply(t, s, domain.Update{CurrentOutput: domain.Ptr("best draft")})

	u, err := st.Finalize(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)
	assert.Equal(t, "best draft", next.FinalOutput)
	assert.True(t, next.Status.Terminal())
}

func TestPlan(t *testing.T) {
	gen := testutils.NewGenerator("").On("Break the research query",
		"Here you go:\n```json\n{\"query_type\":\"comparative\",\"research_depth\":\"quick\",\"sub_questions\":[\"What is X?\",\"What is Y?\",\" \"]}\n```")
	st := steps.New(steps.Config{Generator: gen})
	s := domain.NewState("r1", domain.ModeResearch, "Compare X vs Y", 0)

	u, err := st.Plan(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)

	assert.Equal(t, []string{"What is X?", "What is Y?"}, next.PendingItems)
	assert.Equal(t, domain.QueryComparative, next.QueryType)
	assert.Equal(t, domain.DepthQuick, next.Depth)
	assert.Equal(t, 6, next.MaxIterations)
	assert.Equal(t, 0, next.Cursor)
}

func TestPlan_MalformedFallsBack(t *testing.T) {
	gen := testutils.NewGenerator(`{"query_type": comparative, "sub_questions": [`)
	st := steps.New(steps.Config{Generator: gen})
	s := domain.NewState("r1", domain.ModeResearch, "Compare X vs Y", 0)

	u, err := st.Plan(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)

	assert.Equal(t, []string{"Compare X vs Y"}, next.PendingItems)
	assert.Equal(t, domain.DepthStandard, next.Depth)
	assert.Equal(t, 10, next.MaxIterations)
	assert.Equal(t, domain.QueryGeneral, next.QueryType)
}

func TestPlan_BackendErrorFallsBack(t *testing.T) {
	gen := testutils.NewGenerator("").Fail("Break the research query", fmt.Errorf("%w: refused", domain.ErrBackend))
	st := steps.New(steps.Config{Generator: gen})

	u, err := st.Plan(context.Background(), domain.NewState("r1", domain.ModeResearch, "q", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, u.PendingItems)
}

func TestPlan_SingleQuestionFallsBack(t *testing.T) {
	gen := testutils.NewGenerator(`{"query_type":"factual","research_depth":"deep","sub_questions":["only one"]}`)
	st := steps.New(steps.Config{Generator: gen})

	u, err := st.Plan(context.Background(), domain.NewState("r1", domain.ModeResearch, "When was Go released?", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"When was Go released?"}, u.PendingItems)
	assert.Equal(t, domain.DepthDeep, *u.Depth)
}

func TestPlan_RequestSettingsWin(t *testing.T) {
	gen := testutils.NewGenerator(`{"query_type":"factual","research_depth":"quick","sub_questions":["a","b"]}`)
	st := steps.New(steps.Config{Generator: gen})
	s := domain.NewState("r1", domain.ModeResearch, "q", 3)
	s.Depth = domain.DepthExhaustive

	u, err := st.Plan(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)
	assert.Equal(t, domain.DepthExhaustive, next.Depth)
	assert.Equal(t, 3, next.MaxIterations)
}

func planned(t *testing.T, depth string, max int, items ...string) *domain.State {
	t.Helper()
	s := domain.NewState("r1", domain.ModeResearch, "query", 0)
	return apply(t, s, domain.Update{
		PendingItems:  items,
		Cursor:        domain.Ptr(0),
		Depth:         domain.Ptr(depth),
		MaxIterations: domain.Ptr(max),
	})
}

func TestSearch_TagsResultsWithCursor(t *testing.T) {
	searcher := testutils.NewSearcher().Add("b?",
		domain.SearchResult{URL: "https://1"}, domain.SearchResult{URL: "https://2"},
		domain.SearchResult{URL: "https://3"}, domain.SearchResult{URL: "https://4"},
		domain.SearchResult{URL: "https://5"})
	st := steps.New(steps.Config{Generator: testutils.NewGenerator(""), Searcher: searcher})
	s := planned(t, domain.DepthQuick, 6, "a?", "b?")
	s = apply(t, s, domain.Update{Cursor: domain.Ptr(1), Iteration: domain.Ptr(1), AppendHistory: []domain.CycleRecord{{Index: 1}}})

	u, err := st.Search(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, u.Cursor)
	require.Len(t, u.AppendResults, 4)
	for _, r := range u.AppendResults {
		assert.Equal(t, 1, r.Item)
	}
}

func TestAnalyze_AdvancesCursor(t *testing.T) {
	gen := testutils.NewGenerator("").On("Answer the research question", "X is a thing [1]")
	st := steps.New(steps.Config{Generator: gen})
	s := planned(t, domain.DepthStandard, 10, "What is X?", "What is Y?")
	s = apply(t, s, domain.Update{AppendResults: []domain.SearchResult{{Title: "X", URL: "https://x", Item: 0}}})

	u, err := st.Analyze(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)

	assert.Equal(t, 1, next.Cursor)
	assert.Equal(t, 1, next.Iteration)
	require.Len(t, next.History, 1)
	assert.Equal(t, "What is X?", next.History[0].Subject)
	assert.Equal(t, "X is a thing [1]", next.History[0].Artifact)
	assert.Contains(t, gen.Calls()[0].Prompt, "https://x")
}

func TestAnalyze_NoResults(t *testing.T) {
	gen := testutils.NewGenerator("from memory")
	st := steps.New(steps.Config{Generator: gen})
	s := planned(t, domain.DepthStandard, 10, "q")

	_, err := st.Analyze(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, gen.Calls()[0].Prompt, "No search results were found")
}

func analyzedAll(t *testing.T, depth string, max int, items ...string) *domain.State {
	t.Helper()
	s := planned(t, depth, max, items...)
	for i, item := range items {
		s = apply(t, s, domain.Update{
			Cursor:        domain.Ptr(i + 1),
			Iteration:     domain.Ptr(i + 1),
			AppendHistory: []domain.CycleRecord{{Index: i + 1, Subject: item, Artifact: "answer " + item}},
		})
	}
	return s
}

func TestEvaluateCoverage_QueuesFollowUps(t *testing.T) {
	gen := testutils.NewGenerator(`{"is_sufficient": false, "coverage_score": 0.4, "knowledge_gap": "costs",
		"follow_up_queries": ["a", "What about cost?", "what about cost?", "History?", "Risks?", "Future?"]}`)
	st := steps.New(steps.Config{Generator: gen})
	s := analyzedAll(t, domain.DepthExhaustive, 2, "a", "b")

	u, err := st.EvaluateCoverage(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)

	assert.Equal(t, []string{"a", "b", "What about cost?", "History?", "Risks?"}, next.PendingItems)
	assert.Equal(t, 5, next.MaxIterations)
	assert.Equal(t, 2, next.CoveredThrough)
	assert.InDelta(t, 0.4, next.CoverageScore, 1e-9)
	assert.Equal(t, domain.StepSearch, steps.RouteResearch(next))
}

func TestEvaluateCoverage_BudgetCapped(t *testing.T) {
	gen := testutils.NewGenerator(`{"is_sufficient": false, "follow_up_queries": ["x", "y", "z"]}`)
	st := steps.New(steps.Config{Generator: gen})
	items := make([]string, 29)
	for i := range items {
		items[i] = fmt.Sprintf("q%d", i)
	}
	s := analyzedAll(t, domain.DepthExhaustive, 29, items...)

	u, err := st.EvaluateCoverage(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 30, *u.MaxIterations)
}

func TestEvaluateCoverage_FailsClosed(t *testing.T) {
	for name, gen := range map[string]*testutils.Generator{
		"malformed": testutils.NewGenerator("I think we should continue researching."),
		"backend":   testutils.NewGenerator("").Fail("Judge whether", errors.New("timeout")),
	} {
		t.Run(name, func(t *testing.T) {
			st := steps.New(steps.Config{Generator: gen})
			s := analyzedAll(t, domain.DepthExhaustive, 20, "a")

			u, err := st.EvaluateCoverage(context.Background(), s)
			require.NoError(t, err)
			next := apply(t, s, u)

			assert.Equal(t, []string{"a"}, next.PendingItems)
			assert.Equal(t, domain.StepSynthesize, steps.RouteResearch(next))
		})
	}
}

func TestEvaluateCoverage_Sufficient(t *testing.T) {
	gen := testutils.NewGenerator(`{"is_sufficient": true, "coverage_score": 0.9, "follow_up_queries": ["more"]}`)
	st := steps.New(steps.Config{Generator: gen})
	s := analyzedAll(t, domain.DepthExhaustive, 20, "a")

	u, err := st.EvaluateCoverage(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, u.AppendPending)
	assert.Nil(t, u.MaxIterations)
}

func TestSynthesize(t *testing.T) {
	gen := testutils.NewGenerator("").On("Write the final report", "# Report\n\nX beats Y [1].")
	st := steps.New(steps.Config{Generator: gen})
	s := analyzedAll(t, domain.DepthStandard, 10, "What is X?")
	s = apply(t, s, domain.Update{
		QueryType: domain.Ptr(domain.QueryComparative),
		AppendResults: []domain.SearchResult{
			{Title: "X", URL: "https://x", Item: 0},
			{Title: "X again", URL: "https://x", Item: 0},
		},
	})

	u, err := st.Synthesize(context.Background(), s)
	require.NoError(t, err)
	next := apply(t, s, u)

	assert.Equal(t, "# Report\n\nX beats Y [1].", next.FinalOutput)
	assert.Equal(t, domain.StatusComplete, next.Status)

	prompt := gen.Calls()[0].Prompt
	assert.Contains(t, prompt, "comparison table")
	assert.Contains(t, prompt, "## Research Area 1: What is X?")
	assert.Contains(t, prompt, "[1] X\n")
	assert.NotContains(t, prompt, "[2]")
}

func TestSynthesize_DegradesWithoutBackendOrSources(t *testing.T) {
	gen := testutils.NewGenerator("").Fail("Write the final report", errors.New("down"))
	st := steps.New(steps.Config{Generator: gen})
	s := analyzedAll(t, domain.DepthStandard, 10, "What is X?")

	u, err := st.Synthesize(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, *u.FinalOutput, "answer What is X?")
	assert.Contains(t, *u.FinalOutput, "No external sources")
}
