package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/personachat/relay/internal/log"
)

const (
	// Web search query bounds.
	webQueryMinLen = 1
	webQueryMaxLen = 100

	// webResultLimit caps the result list returned to the model.
	webResultLimit = 3

	// webContentMaxChars truncates each result's body text.
	webContentMaxChars = 1000

	// webFetchTimeout bounds the readability fallback fetch.
	webFetchTimeout = 5 * time.Second
)

// WebResult is one web search hit handed back to the model.
type WebResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// WebSearcher is the generic web search tool adapter.
//
// Unlike the YouTube adapter it has no degraded mode: a missing credential
// or provider failure surfaces as an error, which the orchestrator absorbs
// into the per-tool error path.
type WebSearcher struct {
	client     Searcher
	httpClient *http.Client
	logger     log.Logger
}

// NewWebSearcher creates the web search adapter. client may be nil when the
// search credential is absent; Search then fails with a descriptive error.
func NewWebSearcher(client Searcher, logger log.Logger) *WebSearcher {
	return &WebSearcher{
		client:     client,
		httpClient: &http.Client{Timeout: webFetchTimeout},
		logger:     logger,
	}
}

// Search runs a live-content web search and returns at most three results
// with bodies truncated to 1000 characters.
func (s *WebSearcher) Search(ctx context.Context, query string) ([]WebResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < webQueryMinLen || len(query) > webQueryMaxLen {
		return nil, fmt.Errorf("query must be between %d and %d characters, got %d", webQueryMinLen, webQueryMaxLen, len(query))
	}
	if s.client == nil {
		return nil, fmt.Errorf("web search is unavailable: search credential is not configured")
	}

	results, err := s.client.Search(ctx, query, Options{
		NumResults: webResultLimit,
		Contents:   true,
		Livecrawl:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	if len(results) > webResultLimit {
		results = results[:webResultLimit]
	}

	out := make([]WebResult, 0, len(results))
	for _, r := range results {
		content := r.Text
		if content == "" {
			// Provider occasionally returns hits without body text; fetch the
			// page once and extract readable text. Best-effort only.
			content = s.fetchReadable(ctx, r.URL)
		}
		out = append(out, WebResult{
			Title:         r.Title,
			URL:           r.URL,
			Content:       truncate(content, webContentMaxChars),
			PublishedDate: r.PublishedDate,
		})
	}
	return out, nil
}

// fetchReadable fetches a page and extracts its readable text.
// Returns empty string on any failure; the result entry still carries its
// title and URL.
func (s *WebSearcher) fetchReadable(ctx context.Context, rawURL string) string {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("readability fetch failed", "url", rawURL, "error", err)
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, exaMaxResponseSize), pageURL)
	if err != nil {
		s.logger.Debug("readability extraction failed", "url", rawURL, "error", err)
		return ""
	}
	return article.TextContent
}
