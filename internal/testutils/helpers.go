// Package testutils provides scripted collaborators for tests: a generation
// backend that answers by prompt substring, a canned searcher, an event
// recorder and a failing sink.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

type rule struct {
	match   string
	replies []string
	err     error
	block   bool
	served  int
}

// Generator is a scripted ports.Generator. Rules are checked in registration
// order against the prompt; a rule with several replies serves them in turn
// and then repeats the last one.
type Generator struct {
	mu       sync.Mutex
	rules    []*rule
	fallback string
	calls    []ports.GenerateRequest
}

// NewGenerator returns a generator that answers fallback when no rule matches.
func NewGenerator(fallback string) *Generator {
	return &Generator{fallback: fallback}
}

// On answers prompts containing match with replies.
func (g *Generator) On(match string, replies ...string) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, &rule{match: match, replies: replies})
	return g
}

// Fail makes prompts containing match fail with err.
func (g *Generator) Fail(match string, err error) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, &rule{match: match, err: err})
	return g
}

// Block makes prompts containing match wait until the context is done.
func (g *Generator) Block(match string) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, &rule{match: match, block: true})
	return g
}

// Generate implements ports.Generator.
func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBackend, err)
	}

	g.mu.Lock()
	g.calls = append(g.calls, req)
	var hit *rule
	for _, r := range g.rules {
		if strings.Contains(req.Prompt, r.match) {
			hit = r
			break
		}
	}
	reply := g.fallback
	if hit != nil && len(hit.replies) > 0 {
		idx := hit.served
		if idx >= len(hit.replies) {
			idx = len(hit.replies) - 1
		}
		reply = hit.replies[idx]
		hit.served++
	}
	g.mu.Unlock()

	if hit != nil && hit.block {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", domain.ErrBackend, ctx.Err())
	}
	if hit != nil && hit.err != nil {
		return "", hit.err
	}
	return reply, nil
}

// Calls returns the requests received so far.
func (g *Generator) Calls() []ports.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ports.GenerateRequest{}, g.calls...)
}

// CallsMatching counts requests whose prompt contains sub.
func (g *Generator) CallsMatching(sub string) int {
	n := 0
	for _, c := range g.Calls() {
		if strings.Contains(c.Prompt, sub) {
			n++
		}
	}
	return n
}

// Searcher is a canned ports.Searcher keyed by exact query.
type Searcher struct {
	mu      sync.Mutex
	byQuery map[string][]domain.SearchResult
	Default []domain.SearchResult
	queries []string
}

// NewSearcher returns a searcher answering def for unknown queries.
func NewSearcher(def ...domain.SearchResult) *Searcher {
	return &Searcher{byQuery: map[string][]domain.SearchResult{}, Default: def}
}

// Add registers results for query.
func (s *Searcher) Add(query string, results ...domain.SearchResult) *Searcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byQuery[query] = results
	return s
}

// Search implements ports.Searcher.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) []domain.SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)

	res, ok := s.byQuery[query]
	if !ok {
		res = s.Default
	}
	if maxResults > 0 && len(res) > maxResults {
		res = res[:maxResults]
	}
	return append([]domain.SearchResult{}, res...)
}

// Queries returns the queries received so far.
func (s *Searcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.queries...)
}

// Recorder collects events.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// OnEvent implements domain.Observer.
func (r *Recorder) OnEvent(ctx context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event{}, r.events...)
}

// Steps returns the step names of progress events, in order.
func (r *Recorder) Steps() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Type == domain.EventProgress {
			out = append(out, e.Step)
		}
	}
	return out
}

// FailingSink is a ports.Sink whose every call fails with Err.
type FailingSink struct {
	Err error
}

func (f FailingSink) Save(ctx context.Context, rec domain.Record) (domain.RecordRef, error) {
	return domain.RecordRef{}, f.Err
}

func (f FailingSink) List(ctx context.Context) ([]domain.RecordSummary, error) {
	return nil, f.Err
}

func (f FailingSink) Get(ctx context.Context, name string) (*domain.StoredRecord, error) {
	return nil, f.Err
}

func (f FailingSink) Delete(ctx context.Context, name string) error {
	return f.Err
}
