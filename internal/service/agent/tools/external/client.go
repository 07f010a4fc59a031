package external

import (
	"context"
	"time"
)

// SearchClient abstracts an external web-search API so the web_search tool
// can support multiple providers.
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error)
}

// SearchOptions are provider-agnostic search parameters.
type SearchOptions struct {
	MaxResults int
	// Topic is "general", "news", or "finance" ("" means provider default).
	Topic string
}

// SearchResult is one normalized search hit.
type SearchResult struct {
	Title       string
	URL         string
	Snippet     string
	Score       float64
	PublishedAt *time.Time
}

// SearchResponse is the normalized search response.
type SearchResponse struct {
	Results   []SearchResult
	Query     string
	Timestamp time.Time
}
