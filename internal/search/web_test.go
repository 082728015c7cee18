package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personachat/relay/internal/log"
)

func TestWebSearchValidatesQuery(t *testing.T) {
	t.Parallel()

	s := NewWebSearcher(&fakeSearcher{}, log.NewNop())

	_, err := s.Search(t.Context(), "")
	assert.ErrorContains(t, err, "between 1 and 100 characters")

	_, err = s.Search(t.Context(), "   ")
	assert.ErrorContains(t, err, "between 1 and 100 characters")

	_, err = s.Search(t.Context(), strings.Repeat("q", 101))
	assert.ErrorContains(t, err, "between 1 and 100 characters")
}

func TestWebSearchWithoutCredentialFails(t *testing.T) {
	t.Parallel()

	s := NewWebSearcher(nil, log.NewNop())

	_, err := s.Search(t.Context(), "golang generics")
	assert.ErrorContains(t, err, "credential")
}

func TestWebSearchTruncatesAndCaps(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 5000)
	client := &fakeSearcher{results: []Result{
		{Title: "One", URL: "https://a.dev", Text: long, PublishedDate: "2026-01-02"},
		{Title: "Two", URL: "https://b.dev", Text: "short"},
		{Title: "Three", URL: "https://c.dev", Text: "body"},
		{Title: "Four", URL: "https://d.dev", Text: "extra"},
	}}
	s := NewWebSearcher(client, log.NewNop())

	out, err := s.Search(t.Context(), "golang generics")
	require.NoError(t, err)

	require.Len(t, out, 3, "results capped at three")
	assert.Len(t, out[0].Content, 1000, "content truncated")
	assert.Equal(t, "2026-01-02", out[0].PublishedDate)
	assert.Equal(t, "short", out[1].Content)

	require.Len(t, client.calls, 1)
	assert.Equal(t, 3, client.calls[0].opts.NumResults)
	assert.True(t, client.calls[0].opts.Contents)
	assert.True(t, client.calls[0].opts.Livecrawl)
}

func TestWebSearchPropagatesProviderError(t *testing.T) {
	t.Parallel()

	client := &fakeSearcher{err: assert.AnError}
	s := NewWebSearcher(client, log.NewNop())

	_, err := s.Search(t.Context(), "golang")
	assert.ErrorIs(t, err, assert.AnError)
}
