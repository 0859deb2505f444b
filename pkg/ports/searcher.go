package ports

import (
	"context"

	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Searcher is the web search collaborator.
// It returns an empty slice on any failure and logs instead of propagating.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []domain.SearchResult
}
