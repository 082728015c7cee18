package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/personachat/relay/internal/log"
)

const (
	// exaRequestTimeout bounds one provider round trip.
	exaRequestTimeout = 10 * time.Second

	// exaMaxResponseSize limits the response body read (resource exhaustion
	// protection, same bound the relay applies to all outbound fetches).
	exaMaxResponseSize = 5 * 1024 * 1024

	// exaDefaultBurst is the limiter burst when rate limiting is enabled.
	exaDefaultBurst = 10
)

// ExaClient calls the Exa search API over REST.
//
// Each call is independent: no caching, no shared state beyond the HTTP
// client's connection pool and the outbound rate limiter.
type ExaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// ExaConfig contains the parameters for NewExaClient.
type ExaConfig struct {
	BaseURL string // required, e.g. "https://api.exa.ai"
	APIKey  string // required; callers handle the no-credential case before construction
	// RatePerSecond limits outbound calls. <= 0 uses 5/s.
	RatePerSecond float64
	// HTTPClient overrides the default client (tests). Optional.
	HTTPClient *http.Client
}

// NewExaClient creates an Exa search client.
func NewExaClient(cfg ExaConfig, logger log.Logger) (*ExaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("exa base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("exa API key is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: exaRequestTimeout}
	}

	return &ExaClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), exaDefaultBurst),
		logger:     logger,
	}, nil
}

// exaRequest is the wire shape of POST /search.
type exaRequest struct {
	Query          string       `json:"query"`
	NumResults     int          `json:"numResults,omitempty"`
	IncludeDomains []string     `json:"includeDomains,omitempty"`
	Contents       *exaContents `json:"contents,omitempty"`
}

type exaContents struct {
	Text      bool   `json:"text"`
	Livecrawl string `json:"livecrawl,omitempty"`
}

type exaResponse struct {
	Results []Result `json:"results"`
}

// Search implements Searcher against the Exa /search endpoint.
func (c *ExaClient) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqBody := exaRequest{
		Query:          query,
		NumResults:     opts.NumResults,
		IncludeDomains: opts.IncludeDomains,
	}
	if opts.Contents {
		reqBody.Contents = &exaContents{Text: true}
		if opts.Livecrawl {
			reqBody.Contents.Livecrawl = "always"
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, exaMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("search provider error",
			"status", resp.StatusCode,
			"query_len", len(query),
			"duration", time.Since(start))
		return nil, fmt.Errorf("search provider returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed exaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	c.logger.Debug("search completed",
		"results", len(parsed.Results),
		"query_len", len(query),
		"duration", time.Since(start))
	return parsed.Results, nil
}
