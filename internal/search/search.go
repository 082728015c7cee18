// Package search provides the search provider client and the two tool
// adapters built on top of it: generic web search and YouTube-biased search.
//
// The provider is assumed unreliable (timeouts, empty results) and
// rate-limited. Adapters treat every call as independent and side-effect
// free; each request carries its own dedup state and nothing is cached.
package search

import "context"

// Options controls a single provider search call.
type Options struct {
	// NumResults is the requested result count. The provider may return fewer.
	NumResults int
	// IncludeDomains restricts results to the given domains.
	IncludeDomains []string
	// Contents requests page body text along with each result.
	Contents bool
	// Livecrawl forces a fresh crawl instead of the provider's index copy.
	// Only meaningful together with Contents.
	Livecrawl bool
}

// Result is one raw provider result.
type Result struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Text          string `json:"text,omitempty"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// Searcher is the outbound search provider contract.
// Consumers hold a nil Searcher when no credential is configured; adapters
// that support a degraded mode must check for nil before calling.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// truncate bounds s to max bytes. Provider text is ASCII-safe enough for the
// snippet use case; items are display hints, not content of record.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
