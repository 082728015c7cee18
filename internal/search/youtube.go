package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/personachat/relay/internal/log"
)

const (
	// DefaultYouTubeMaxResults is used when the model omits maxResults.
	DefaultYouTubeMaxResults = 8

	// MaxYouTubeResults is the hard cap on the returned item list.
	MaxYouTubeResults = 15

	// youtubeSnippetMaxChars truncates per-item snippets.
	youtubeSnippetMaxChars = 220

	// noCredentialNote explains the degraded mode to the model.
	noCredentialNote = "Search credential is not configured. Set EXA_API_KEY to enable YouTube search results beyond the channel link."

	// noResultsNote is attached when only navigational fallbacks are returned.
	noResultsNote = "No specific videos/playlists found via search. Showing the channel. Try a broader or different topic keyword."
)

// Channel identifies a persona's official YouTube channel.
// Zero value means no channel is known.
type Channel struct {
	URL       string // e.g. "https://www.youtube.com/@codewithmaya"
	Handle    string // e.g. "@codewithmaya"; empty when URL has no handle path
	OwnerName string // display name for the synthetic channel entry
}

// Matches reports whether a result URL belongs to the channel, by handle
// first, then by URL substring.
func (c Channel) Matches(resultURL string) bool {
	if c.Handle != "" {
		return strings.Contains(resultURL, c.Handle)
	}
	if c.URL != "" {
		return strings.Contains(resultURL, c.URL)
	}
	return false
}

// YouTubeItem is one curated entry in the adapter output.
type YouTubeItem struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Kind          Kind   `json:"type"`
	Snippet       string `json:"snippet,omitempty"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// YouTubeResult is the adapter output handed back to the model.
type YouTubeResult struct {
	Channel string        `json:"channel,omitempty"`
	Items   []YouTubeItem `json:"items"`
	Note    string        `json:"note,omitempty"`
}

// YouTubeSearcher finds videos and playlists on YouTube, boosting the
// persona's own channel to the front of the list.
//
// Search providers are unreliable for niche queries, so the adapter runs a
// tiered query list and guarantees a non-empty, actionable result whenever a
// channel is known — degraded output is always preferred over failure.
type YouTubeSearcher struct {
	client Searcher // nil = degraded mode (no credential), zero network calls
	logger log.Logger
}

// NewYouTubeSearcher creates the YouTube search adapter.
// A nil client selects the degraded channel-link-only mode.
func NewYouTubeSearcher(client Searcher, logger log.Logger) *YouTubeSearcher {
	return &YouTubeSearcher{client: client, logger: logger}
}

// Search returns a ranked, deduplicated, channel-prioritized item list for
// the query. maxResults outside [1, 15] is clamped; 0 selects the default.
func (s *YouTubeSearcher) Search(ctx context.Context, query string, maxResults int, ch Channel) (*YouTubeResult, error) {
	if maxResults <= 0 {
		maxResults = DefaultYouTubeMaxResults
	}
	if maxResults > MaxYouTubeResults {
		maxResults = MaxYouTubeResults
	}

	if s.client == nil {
		return s.degraded(ch), nil
	}

	items := s.collect(ctx, query, maxResults, ch)

	// The official channel always leads when known; drop any search hit for
	// the exact channel URL so it appears once.
	var out []YouTubeItem
	if ch.URL != "" {
		out = append(out, channelEntry(ch))
	}
	var hits int
	for _, it := range items {
		if it.URL == ch.URL {
			continue
		}
		out = append(out, it)
		hits++
	}

	var note string
	if hits == 0 {
		if ch.URL != "" {
			out = append(out, navigationalFallback(ch, query)...)
		}
		note = noResultsNote
	}

	if len(out) > maxResults {
		out = out[:maxResults]
	}

	return &YouTubeResult{Channel: ch.URL, Items: out, Note: note}, nil
}

// degraded returns the channel-link-only result used when no search
// credential is configured. Zero network calls by construction.
func (s *YouTubeSearcher) degraded(ch Channel) *YouTubeResult {
	res := &YouTubeResult{Channel: ch.URL, Note: noCredentialNote}
	if ch.URL != "" {
		res.Items = []YouTubeItem{channelEntry(ch)}
	}
	s.logger.Debug("youtube search degraded: no credential configured")
	return res
}

// collect runs the tiered candidate queries and accumulates deduplicated,
// on-domain, classified items up to maxResults. Channel hits are promoted to
// the front of the accumulating list.
func (s *YouTubeSearcher) collect(ctx context.Context, query string, maxResults int, ch Channel) []YouTubeItem {
	seen := make(map[string]struct{})
	var items []YouTubeItem

	for _, q := range candidateQueries(query, ch) {
		merged := s.runQuery(ctx, q, maxResults)

		for _, r := range merged {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			if !IsYouTubeURL(r.URL) {
				continue
			}

			item := YouTubeItem{
				Title:         r.Title,
				URL:           r.URL,
				Kind:          Classify(r.URL),
				Snippet:       truncate(r.Text, youtubeSnippetMaxChars),
				PublishedDate: r.PublishedDate,
			}

			if ch.Matches(r.URL) {
				items = append([]YouTubeItem{item}, items...)
			} else {
				items = append(items, item)
			}
			seen[r.URL] = struct{}{}

			if len(items) >= maxResults {
				break
			}
		}
		if len(items) >= maxResults {
			break
		}
	}
	return items
}

// runQuery issues a lightweight domain-restricted search and, when the
// result count is thin, supplements it with a content-fetching search on the
// same query. Provider errors degrade to an empty slice; the adapter never
// fails the whole tool call for one bad query.
func (s *YouTubeSearcher) runQuery(ctx context.Context, q string, maxResults int) []Result {
	light, err := s.client.Search(ctx, q, Options{
		NumResults:     max(5, maxResults),
		IncludeDomains: []string{"youtube.com"},
	})
	if err != nil {
		s.logger.Debug("youtube lightweight search failed", "error", err)
		light = nil
	}

	if len(light) >= max(3, maxResults/2) {
		return light
	}

	heavy, err := s.client.Search(ctx, q, Options{
		NumResults: max(5, maxResults),
		Contents:   true,
		Livecrawl:  true,
	})
	if err != nil {
		s.logger.Debug("youtube contents search failed", "error", err)
		heavy = nil
	}

	return append(light, heavy...)
}

// candidateQueries builds the ordered query tiers: channel-handle biased,
// channel-URL biased, then the general fallback (always present).
func candidateQueries(query string, ch Channel) []string {
	var queries []string
	if ch.Handle != "" {
		queries = append(queries, fmt.Sprintf("%s %s playlist OR video site:youtube.com", query, ch.Handle))
	}
	if ch.URL != "" {
		queries = append(queries, fmt.Sprintf("%s %s playlist OR video site:youtube.com", query, ch.URL))
	}
	return append(queries, query+" playlist OR video site:youtube.com")
}

// channelEntry synthesizes the official-channel item that leads the list.
func channelEntry(ch Channel) YouTubeItem {
	return YouTubeItem{
		Title: ch.OwnerName + " — Official YouTube Channel",
		URL:   ch.URL,
		Kind:  KindChannel,
	}
}

// navigationalFallback synthesizes the three on-channel navigation entries
// returned when search finds nothing specific, so the response is never a
// bare link with nothing actionable.
func navigationalFallback(ch Channel, query string) []YouTubeItem {
	base := strings.TrimSuffix(ch.URL, "/")
	if !strings.Contains(base, "/@") && ch.Handle != "" {
		base = "https://www.youtube.com/" + ch.Handle
	}

	return []YouTubeItem{
		{Title: "Videos tab", URL: base + "/videos", Kind: KindOther},
		{Title: "Playlists tab", URL: base + "/playlists", Kind: KindOther},
		{Title: "Search on channel: " + query, URL: base + "/search?query=" + url.QueryEscape(query), Kind: KindOther},
	}
}
