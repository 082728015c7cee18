// Package persona provides the persona records the relay can emulate and the
// deterministic system prompt built from them.
//
// Records are immutable after Store construction. The Store is an explicit
// object passed by reference into the request path — there is no ambient
// global lookup — so tests substitute fixture personas freely.
package persona

import (
	"context"
	"strings"
)

// FewShot is one example exchange rendered into the system prompt.
type FewShot struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Tone describes how a persona speaks.
type Tone struct {
	Language     string   `json:"language"`
	Style        []string `json:"style"`
	Catchphrases []string `json:"catchphrases"`
}

// Defaults lists a persona's preferred stack, tools and deployment targets.
// Rendered verbatim into the prompt, in order.
type Defaults struct {
	Stack      []string `json:"stack"`
	Tools      []string `json:"tools"`
	Deployment []string `json:"deployment"`
}

// Source is a labeled reference link. Sources inform tone, not facts.
type Source struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Record is one immutable persona configuration.
type Record struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio"`
	Tone        Tone      `json:"tone"`
	Defaults    Defaults  `json:"defaults"`
	Guidelines  []string  `json:"guidelines"`
	FewShots    []FewShot `json:"fewShots"`
	Sources     []Source  `json:"sources"`
}

// ChannelURL returns the persona's official YouTube channel URL, matched
// case-insensitively by a source label containing "youtube".
// Returns empty string when no channel source is configured.
func (r *Record) ChannelURL() string {
	for _, s := range r.Sources {
		if strings.Contains(strings.ToLower(s.Label), "youtube") {
			return s.URL
		}
	}
	return ""
}

// ChannelHandle returns the "@handle" form of the channel URL, or empty
// string when the channel URL does not use the handle path.
func (r *Record) ChannelHandle() string {
	u := r.ChannelURL()
	if u == "" {
		return ""
	}
	_, after, found := strings.Cut(u, "/@")
	if !found {
		return ""
	}
	handle := strings.TrimSuffix(after, "/")
	if handle == "" {
		return ""
	}
	return "@" + handle
}

// personaKey uses an empty struct for a zero-allocation context key.
type personaKey struct{}

// NewContext stores the active persona record in the context.
// The orchestrator binds the persona per request; tool handlers retrieve it
// via FromContext.
func NewContext(ctx context.Context, rec *Record) context.Context {
	return context.WithValue(ctx, personaKey{}, rec)
}

// FromContext retrieves the active persona record from the context.
// Returns nil if not set, allowing graceful degradation (tools fall back to
// persona-neutral behavior).
func FromContext(ctx context.Context) *Record {
	rec, _ := ctx.Value(personaKey{}).(*Record)
	return rec
}
