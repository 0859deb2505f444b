// Package searxng implements ports.Searcher against a SearXNG instance's JSON API.
package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
)

// DefaultBaseURL is the address of a local SearXNG container.
const DefaultBaseURL = "http://localhost:8080"

// Client queries SearXNG. It never returns errors to the caller.
type Client struct {
	baseURL    string
	categories string
	http       *http.Client
	logger     *slog.Logger
}

var _ ports.Searcher = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.http = &http.Client{Timeout: d}
	}
}

// WithLogger configures a logger for failed searches.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithCategories overrides the "general" search category.
func WithCategories(categories string) Option {
	return func(cl *Client) {
		cl.categories = categories
	}
}

// New creates a client for the instance at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		categories: "general",
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns at most maxResults hits, or an empty slice on any failure.
func (c *Client) Search(ctx context.Context, query string, maxResults int) []domain.SearchResult {
	results, err := c.search(ctx, query, maxResults)
	if err != nil {
		c.logger.Warn("search failed, continuing without results", "query", query, "err", err)
		return []domain.SearchResult{}
	}
	return results
}

func (c *Client) search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", c.categories)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrToolFailure, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrToolFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: searxng returned %s", domain.ErrToolFailure, resp.Status)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrToolFailure, err)
	}

	out := make([]domain.SearchResult, 0, len(body.Results))
	for _, r := range body.Results {
		if maxResults > 0 && len(out) == maxResults {
			break
		}
		out = append(out, domain.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Item:    -1,
		})
	}
	return out, nil
}
