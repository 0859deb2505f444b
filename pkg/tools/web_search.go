package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

// WebSearch exposes a ports.Searcher as web_search(query="...").
// It remembers every hit so the caller can fold them into the run's results.
type WebSearch struct {
	searcher   ports.Searcher
	maxResults int

	mu        sync.Mutex
	collected []domain.SearchResult
}

// NewWebSearch creates the tool.
func NewWebSearch(searcher ports.Searcher, maxResults int) *WebSearch {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearch{searcher: searcher, maxResults: maxResults}
}

func (w *WebSearch) Name() string  { return "web_search" }
func (w *WebSearch) Usage() string { return `web_search(query="...")` }
func (w *WebSearch) Description() string {
	return "search the web and return titles, URLs and snippets"
}

// Call runs the search. No results is not an error.
func (w *WebSearch) Call(ctx context.Context, args map[string]string) (string, error) {
	query, err := requireArg(w.Name(), args, "query")
	if err != nil {
		return "", err
	}

	results := w.searcher.Search(ctx, query, w.maxResults)
	w.mu.Lock()
	w.collected = append(w.collected, results...)
	w.mu.Unlock()

	if len(results) == 0 {
		return "No results found.", nil
	}
	return FormatResults(results), nil
}

// Collected returns every hit seen so far.
func (w *WebSearch) Collected() []domain.SearchResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.SearchResult{}, w.collected...)
}

// FormatResults renders hits as a numbered list for prompts.
func FormatResults(results []domain.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimSpace(b.String())
}
