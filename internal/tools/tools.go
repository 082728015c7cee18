// Package tools declares the relay's model-callable tools to Genkit.
//
// The tool set is fixed: webSearch and youtubeSearch. Handlers are closures
// over their adapters; the per-request persona reaches them through the
// context (persona.NewContext), never through globals.
package tools

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/persona"
	"github.com/personachat/relay/internal/search"
)

// Declared tool names. The orchestrator dispatches model tool calls by these
// string tags.
const (
	WebSearchToolName     = "webSearch"
	YouTubeSearchToolName = "youtubeSearch"
)

// WebSearchInput defines input for the webSearch tool.
type WebSearchInput struct {
	Query string `json:"query" jsonschema_description:"The search query (1-100 characters)"`
}

// YouTubeSearchInput defines input for the youtubeSearch tool.
type YouTubeSearchInput struct {
	Query      string `json:"query" jsonschema_description:"User's topic to search on YouTube"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema_description:"Maximum number of items to return (1-15, default 8)"`
}

// Deps holds the adapters the tool handlers execute against.
type Deps struct {
	Web     *search.WebSearcher
	YouTube *search.YouTubeSearcher
	Logger  log.Logger
}

// Register defines both tools on the Genkit instance and returns them in
// declaration order for the orchestrator's tool set.
func Register(g *genkit.Genkit, deps Deps) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if deps.Web == nil {
		return nil, fmt.Errorf("web searcher is required")
	}
	if deps.YouTube == nil {
		return nil, fmt.Errorf("youtube searcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	webTool := genkit.DefineTool(g, WebSearchToolName,
		"Search the web for up-to-date information. "+
			"Returns the top results with title, URL and a content excerpt.",
		func(ctx *ai.ToolContext, input WebSearchInput) ([]search.WebResult, error) {
			deps.Logger.Info("webSearch called", "query_len", len(input.Query))
			return deps.Web.Search(ctx.Context, input.Query)
		})

	ytTool := genkit.DefineTool(g, YouTubeSearchToolName,
		"Find relevant YouTube videos and playlists, prioritizing the current persona's official channel. "+
			"Returns the channel link first, then curated items.",
		func(ctx *ai.ToolContext, input YouTubeSearchInput) (*search.YouTubeResult, error) {
			deps.Logger.Info("youtubeSearch called", "query_len", len(input.Query), "max_results", input.MaxResults)
			ch := channelFor(persona.FromContext(ctx.Context))
			return deps.YouTube.Search(ctx.Context, input.Query, input.MaxResults, ch)
		})

	return []ai.Tool{webTool, ytTool}, nil
}

// channelFor derives the search.Channel for the active persona.
// A nil record (persona missing from context) yields the zero Channel and
// persona-neutral search behavior.
func channelFor(rec *persona.Record) search.Channel {
	if rec == nil {
		return search.Channel{}
	}
	return search.Channel{
		URL:       rec.ChannelURL(),
		Handle:    rec.ChannelHandle(),
		OwnerName: rec.DisplayName,
	}
}
