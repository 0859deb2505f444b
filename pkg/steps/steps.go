// Package steps implements the step functions and routing policy of the
// refine and research workflows. Every step reads a State and returns only
// the fields it changes; the runtime merges them.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/internal/textutil"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/rimraf-adi/socrates/pkg/protocol"
	"github.com/rimraf-adi/socrates/pkg/tools"
	"github.com/spf13/afero"
)

const (
	generateSearchResults = 3
	generateQueryLimit    = 200
	maxSources            = 25
	maxFollowUps          = 3
)

// Config holds the collaborators shared by all steps of a run.
type Config struct {
	Generator ports.Generator
	// Searcher is optional; without one every search returns nothing.
	Searcher ports.Searcher
	// Model overrides the generator's configured model.
	Model  string
	Logger *slog.Logger
	// Fs backs the read_file tool. Defaults to a read-only view of the OS filesystem.
	Fs            afero.Fs
	MaxToolRounds int
}

// Steps binds the step functions to their collaborators.
type Steps struct {
	gen      ports.Generator
	searcher ports.Searcher
	model    string
	logger   *slog.Logger
	fs       afero.Fs
	rounds   int
}

type noSearch struct{}

func (noSearch) Search(context.Context, string, int) []domain.SearchResult { return nil }

// New creates the step set.
func New(cfg Config) *Steps {
	s := &Steps{
		gen:      cfg.Generator,
		searcher: cfg.Searcher,
		model:    cfg.Model,
		logger:   cfg.Logger,
		fs:       cfg.Fs,
		rounds:   cfg.MaxToolRounds,
	}
	if s.searcher == nil {
		s.searcher = noSearch{}
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.fs == nil {
		s.fs = afero.NewReadOnlyFs(afero.NewOsFs())
	}
	if s.rounds <= 0 {
		s.rounds = tools.DefaultMaxRounds
	}
	return s
}

func (st *Steps) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	out, err := st.gen.Generate(ctx, ports.GenerateRequest{
		Prompt:      prompt,
		System:      systemPrompt,
		Temperature: temperature,
		Model:       st.model,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func tagged(results []domain.SearchResult, item int) []domain.SearchResult {
	out := make([]domain.SearchResult, len(results))
	for i, r := range results {
		r.Item = item
		out[i] = r
	}
	return out
}

// Generate produces the next draft. A search on the task gives optional
// context; no results simply means no context.
func (st *Steps) Generate(ctx context.Context, s *domain.State) (domain.Update, error) {
	results := st.searcher.Search(ctx, textutil.Truncate(s.Task, generateQueryLimit), generateSearchResults)
	searchContext := ""
	if len(results) > 0 {
		searchContext = tools.FormatResults(results)
	}

	out, err := st.generate(ctx, generatePrompt(s, searchContext), 0.5)
	if err != nil {
		return domain.Update{}, err
	}

	return domain.Update{
		Status:        domain.StatusGenerated,
		Message:       fmt.Sprintf("Draft %d written (%d chars)", s.Iteration+1, len(out)),
		CurrentOutput: domain.Ptr(out),
		SearchContext: domain.Ptr(searchContext),
		AppendResults: tagged(results, -1),
	}, nil
}

// GenerateWithTools produces the next draft through the bounded tool loop.
// An exhausted loop still yields a draft.
func (st *Steps) GenerateWithTools(ctx context.Context, s *domain.State) (domain.Update, error) {
	search := tools.NewWebSearch(st.searcher, generateSearchResults)
	reg := tools.NewRegistry(search, tools.NewReadFile(st.fs))

	res, err := tools.RunLoop(ctx, tools.LoopConfig{
		Generator:   st.gen,
		Registry:    reg,
		System:      systemPrompt,
		Model:       st.model,
		Temperature: 0.5,
		MaxRounds:   st.rounds,
		Logger:      st.logger,
	}, generatePrompt(s, ""))
	if err != nil {
		return domain.Update{}, err
	}

	msg := fmt.Sprintf("Draft %d written after %d tool rounds", s.Iteration+1, res.Rounds)
	if res.Exhausted {
		msg += " (tool budget exhausted)"
	}
	collected := search.Collected()
	return domain.Update{
		Status:        domain.StatusGenerated,
		Message:       msg,
		CurrentOutput: domain.Ptr(res.Answer),
		SearchContext: domain.Ptr(tools.FormatResults(collected)),
		AppendResults: tagged(collected, -1),
	}, nil
}

// Critique reviews the current draft and closes the cycle.
func (st *Steps) Critique(ctx context.Context, s *domain.State) (domain.Update, error) {
	feedback, err := st.generate(ctx, critiquePrompt(s), 0.3)
	if err != nil {
		return domain.Update{}, err
	}

	next := s.Iteration + 1
	return domain.Update{
		Status:    domain.StatusCritiqued,
		Message:   fmt.Sprintf("Review %d of %d done", next, s.MaxIterations),
		Feedback:  domain.Ptr(feedback),
		Iteration: domain.Ptr(next),
		AppendHistory: []domain.CycleRecord{{
			Index:      next,
			Artifact:   s.CurrentOutput,
			Evaluation: feedback,
		}},
	}, nil
}

// Finalize promotes the latest draft to the final output.
func (st *Steps) Finalize(ctx context.Context, s *domain.State) (domain.Update, error) {
	return domain.Update{
		Status:      domain.StatusComplete,
		Message:     fmt.Sprintf("Refinement finished after %d cycles", s.Iteration),
		FinalOutput: domain.Ptr(s.CurrentOutput),
	}, nil
}

type planResponse struct {
	QueryType     string   `json:"query_type"`
	ResearchDepth string   `json:"research_depth"`
	SubQuestions  []string `json:"sub_questions"`
}

// Plan splits the query into pending items. It never fails: a backend error,
// an unreadable reply or fewer than two sub-questions fall back to the query
// itself under the default depth.
func (st *Steps) Plan(ctx context.Context, s *domain.State) (domain.Update, error) {
	var plan planResponse
	fallback := false

	reply, err := st.generate(ctx, planPrompt(s.Task), 0.2)
	if err == nil {
		err = protocol.DecodeObject(reply, &plan)
	}
	if err != nil {
		if ctx.Err() != nil {
			return domain.Update{}, err
		}
		st.logger.Warn("plan unreadable, using the query as the only item", "run_id", s.RunID, "err", err)
		fallback = true
	}

	items := make([]string, 0, len(plan.SubQuestions))
	for _, q := range plan.SubQuestions {
		if q = strings.TrimSpace(q); q != "" {
			items = append(items, q)
		}
	}
	if len(items) < 2 {
		items = []string{s.Task}
	}

	queryType := strings.ToLower(strings.TrimSpace(plan.QueryType))
	if !isQueryType(queryType) {
		queryType = domain.QueryGeneral
	}

	depth := s.Depth
	if depth == "" {
		depth = domain.DepthStandard
		if !fallback && domain.IsDepth(plan.ResearchDepth) {
			depth = strings.ToLower(strings.TrimSpace(plan.ResearchDepth))
		}
	}

	u := domain.Update{
		Status:       domain.StatusPlanned,
		Message:      fmt.Sprintf("Query type: %s | Depth: %s | %d research areas", queryType, depth, len(items)),
		PendingItems: items,
		Cursor:       domain.Ptr(0),
		QueryType:    domain.Ptr(queryType),
		Depth:        domain.Ptr(depth),
	}
	if s.MaxIterations == 0 {
		u.MaxIterations = domain.Ptr(domain.LookupDepth(depth).Budget)
	}
	return u, nil
}

func isQueryType(t string) bool {
	switch t {
	case domain.QueryFactual, domain.QueryComparative, domain.QueryExploratory,
		domain.QueryTechnical, domain.QueryHowTo, domain.QueryOpinion, domain.QueryGeneral:
		return true
	}
	return false
}

// Search collects hits for the item at the cursor. The cursor stays put so
// that search and analysis can be retried separately.
func (st *Steps) Search(ctx context.Context, s *domain.State) (domain.Update, error) {
	item, ok := s.CurrentItem()
	if !ok {
		return domain.Update{Status: domain.StatusSearched, Message: "Nothing left to search"}, nil
	}

	policy := domain.LookupDepth(s.Depth)
	results := st.searcher.Search(ctx, item, policy.ResultsPerItem)
	return domain.Update{
		Status:        domain.StatusSearched,
		Message:       fmt.Sprintf("Searching: %s (%d results)", textutil.Truncate(item, 60), len(results)),
		AppendResults: tagged(results, s.Cursor),
	}, nil
}

// Analyze answers the item at the cursor from the hits collected for it,
// then advances the cursor and closes the cycle.
func (st *Steps) Analyze(ctx context.Context, s *domain.State) (domain.Update, error) {
	item, ok := s.CurrentItem()
	if !ok {
		return domain.Update{Status: domain.StatusAnalyzed, Message: "Nothing left to analyze"}, nil
	}

	hits := s.ResultsFor(s.Cursor)
	formatted := "No search results were found for this question. Answer from general knowledge and say so."
	if len(hits) > 0 {
		formatted = tools.FormatResults(hits)
	}

	answer, err := st.generate(ctx, analyzePrompt(item, formatted), 0.3)
	if err != nil {
		return domain.Update{}, err
	}

	next := s.Iteration + 1
	return domain.Update{
		Status:    domain.StatusAnalyzed,
		Message:   fmt.Sprintf("Analyzed: %s", textutil.Truncate(item, 50)),
		Cursor:    domain.Ptr(s.Cursor + 1),
		Iteration: domain.Ptr(next),
		AppendHistory: []domain.CycleRecord{{
			Index:    next,
			Subject:  item,
			Artifact: answer,
		}},
	}, nil
}

type coverageVerdict struct {
	IsSufficient    bool     `json:"is_sufficient"`
	CoverageScore   float64  `json:"coverage_score"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// EvaluateCoverage decides whether the findings so far answer the query and
// may queue follow-up items. Anything unreadable means "stop expanding".
func (st *Steps) EvaluateCoverage(ctx context.Context, s *domain.State) (domain.Update, error) {
	stop := domain.Update{
		Status:         domain.StatusEvaluated,
		CoveredThrough: domain.Ptr(s.Cursor),
	}

	reply, err := st.generate(ctx, coveragePrompt(s, composeFindings(s.History)), 0.2)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Update{}, err
		}
		st.logger.Warn("coverage check failed, stopping expansion", "run_id", s.RunID, "err", err)
		stop.Message = "Coverage check failed; moving to synthesis"
		return stop, nil
	}

	var v coverageVerdict
	if err := protocol.DecodeObject(reply, &v); err != nil {
		st.logger.Warn("coverage verdict unreadable, stopping expansion", "run_id", s.RunID, "err", err)
		stop.Message = "Coverage verdict unreadable; moving to synthesis"
		return stop, nil
	}

	stop.CoverageScore = domain.Ptr(clampScore(v.CoverageScore))
	if v.IsSufficient || len(v.FollowUpQueries) == 0 {
		stop.Message = fmt.Sprintf("Coverage sufficient (score %.2f)", v.CoverageScore)
		return stop, nil
	}

	added := newItems(s.PendingItems, v.FollowUpQueries, maxFollowUps)
	if len(added) == 0 {
		stop.Message = "No new follow-up questions; moving to synthesis"
		return stop, nil
	}

	policy := domain.LookupDepth(s.Depth)
	budget := max(s.MaxIterations, min(policy.MaxBudget, s.Iteration+len(added)))

	u := stop
	u.AppendPending = added
	u.MaxIterations = domain.Ptr(budget)
	u.Message = fmt.Sprintf("Coverage %.2f; %d follow-up questions queued (gap: %s)",
		v.CoverageScore, len(added), textutil.Truncate(v.KnowledgeGap, 80))
	return u, nil
}

func clampScore(f float64) float64 {
	return min(max(f, 0), 1)
}

// newItems returns up to limit candidates not already queued, compared
// case-insensitively.
func newItems(existing, candidates []string, limit int) []string {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, e := range existing {
		seen[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	var out []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Synthesize writes the final report. If the backend fails the report is the
// composed findings, so a run that got this far always ends with output.
func (st *Steps) Synthesize(ctx context.Context, s *domain.State) (domain.Update, error) {
	findings := composeFindings(s.History)
	if findings == "" {
		findings = "No research areas were analyzed."
	}
	sources := domain.UniqueSources(s.Results, maxSources)

	report, err := st.generate(ctx, synthesisPrompt(s, findings, formatSources(sources)), 0.5)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Update{}, err
		}
		st.logger.Warn("synthesis failed, returning composed findings", "run_id", s.RunID, "err", err)
		report = fmt.Sprintf("# %s\n\n%s", s.Task, findings)
	}
	if report == "" {
		report = fmt.Sprintf("# %s\n\n%s", s.Task, findings)
	}
	if len(sources) == 0 {
		report += "\n\n_No external sources were available for this report._"
	}

	return domain.Update{
		Status:      domain.StatusComplete,
		Message:     fmt.Sprintf("Research complete: %d research areas, %d sources", len(s.History), len(sources)),
		FinalOutput: domain.Ptr(report),
	}, nil
}
