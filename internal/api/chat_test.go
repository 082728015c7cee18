package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personachat/relay/internal/chat"
	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/persona"
	"github.com/personachat/relay/internal/testutil"
)

// fakeOrchestrator replays a scripted event sequence.
type fakeOrchestrator struct {
	events   []chat.Event
	response *chat.Response
	err      error

	gotReq chat.Request
	gotCtx context.Context
}

func (f *fakeOrchestrator) Stream(ctx context.Context, req chat.Request, sink chat.Sink) (*chat.Response, error) {
	f.gotReq = req
	f.gotCtx = ctx
	for _, ev := range f.events {
		if err := sink(ev); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	resp := f.response
	if resp == nil {
		resp = &chat.Response{FinishReason: "stop"}
	}
	return resp, nil
}

func testPersonas(t *testing.T) *persona.Store {
	t.Helper()
	store, err := persona.NewStore(
		&persona.Record{
			ID:          "maya",
			DisplayName: "Maya Chen",
			Guidelines:  []string{"be practical"},
			Sources:     []persona.Source{{Label: "YouTube", URL: "https://www.youtube.com/@codewithmaya"}},
		},
		&persona.Record{ID: "ravi", DisplayName: "Ravi Kumar", Guidelines: []string{"be calm"}},
	)
	require.NoError(t, err)
	return store
}

func newTestServer(t *testing.T, orch Orchestrator) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:       log.NewNop(),
		Orchestrator: orch,
		Personas:     testPersonas(t),
	})
	require.NoError(t, err)
	return srv
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const validBody = `{"messages":[{"role":"user","parts":[{"type":"text","text":"hello"}]}]}`

func TestChatRejectsEmptyMessagesBeforeStreaming(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{}
	srv := newTestServer(t, orch)

	for _, body := range []string{
		`{"messages":[]}`,
		`{}`,
		`{"messages":[{"role":"user","parts":[]}]}`,
		`{"messages":[{"role":"alien","parts":[{"type":"text","text":"hi"}]}]}`,
	} {
		rec := postChat(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.NotContains(t, rec.Body.String(), "event:", "no stream bytes on validation failure")
	}
	assert.Nil(t, orch.gotCtx, "orchestrator must not run for invalid requests")
}

func TestChatRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	rec := postChat(t, newTestServer(t, &fakeOrchestrator{}), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatStreamsScriptedEvents(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{
		events: []chat.Event{
			{Type: chat.EventToolInput, Tool: &chat.ToolInvocation{Ref: "c1", Name: "webSearch", Input: map[string]any{"query": "go"}}},
			{Type: chat.EventToolOutput, Tool: &chat.ToolInvocation{Ref: "c1", Name: "webSearch", Output: []any{}}},
			{Type: chat.EventSource, Source: &chat.Source{ID: "s1", URL: "https://go.dev", Title: "Go"}},
			{Type: chat.EventTextDelta, Text: "Hello "},
			{Type: chat.EventTextDelta, Text: "world"},
			{Type: chat.EventFinish, FinishReason: "stop"},
		},
	}
	srv := newTestServer(t, orch)

	rec := postChat(t, srv, validBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Equal(t, []string{
		"start",
		"tool-input-available",
		"tool-output-available",
		"source",
		"text-delta",
		"text-delta",
		"finish",
	}, types)

	startEv := testutil.FindEvent(events, "start")
	var sp startPayload
	require.NoError(t, json.Unmarshal([]byte(startEv.Data), &sp))
	assert.NotEmpty(t, sp.MessageID)

	deltas := testutil.FindAllEvents(events, "text-delta")
	var text string
	for _, d := range deltas {
		var dp deltaPayload
		require.NoError(t, json.Unmarshal([]byte(d.Data), &dp))
		text += dp.Delta
	}
	assert.Equal(t, "Hello world", text)

	toolEv := testutil.FindEvent(events, "tool-input-available")
	var tp toolInputPayload
	require.NoError(t, json.Unmarshal([]byte(toolEv.Data), &tp))
	assert.Equal(t, "c1", tp.ToolCallID)
	assert.Equal(t, "webSearch", tp.ToolName)
}

func TestChatBindsPersonaAndPrompt(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{events: []chat.Event{{Type: chat.EventFinish, FinishReason: "stop"}}}
	srv := newTestServer(t, orch)

	body := `{"messages":[{"role":"user","parts":[{"type":"text","text":"hi"}]}],"persona":"ravi","webSearch":true,"model":"custom/model"}`
	rec := postChat(t, srv, body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, orch.gotReq.System, "Ravi Kumar")
	assert.True(t, orch.gotReq.WebSearch)
	assert.Equal(t, "custom/model", orch.gotReq.Model)
	require.Len(t, orch.gotReq.Messages, 1)

	rec2 := postChat(t, srv, `{"messages":[{"role":"user","parts":[{"type":"text","text":"hi"}]}],"persona":"unknown"}`)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, orch.gotReq.System, "Maya Chen", "unknown persona falls back to default")

	assert.NotNil(t, persona.FromContext(orch.gotCtx), "persona record bound to request context")
}

func TestChatSuppressionFlags(t *testing.T) {
	t.Parallel()

	events := []chat.Event{
		{Type: chat.EventReasoningDelta, Text: "thinking"},
		{Type: chat.EventSource, Source: &chat.Source{ID: "s1", URL: "https://go.dev"}},
		{Type: chat.EventTextDelta, Text: "answer"},
		{Type: chat.EventFinish, FinishReason: "stop"},
	}

	// Default: both forwarded
	srv := newTestServer(t, &fakeOrchestrator{events: events})
	rec := postChat(t, srv, validBody)
	parsed := testutil.ParseSSEEvents(t, rec.Body.String())
	assert.NotNil(t, testutil.FindEvent(parsed, "reasoning-delta"))
	assert.NotNil(t, testutil.FindEvent(parsed, "source"))

	// Suppressed
	srv = newTestServer(t, &fakeOrchestrator{events: events})
	body := `{"messages":[{"role":"user","parts":[{"type":"text","text":"hi"}]}],"sendSources":false,"sendReasoning":false}`
	rec = postChat(t, srv, body)
	parsed = testutil.ParseSSEEvents(t, rec.Body.String())
	assert.Nil(t, testutil.FindEvent(parsed, "reasoning-delta"))
	assert.Nil(t, testutil.FindEvent(parsed, "source"))
	assert.NotNil(t, testutil.FindEvent(parsed, "text-delta"), "text is never suppressed")
}

func TestChatStreamFailureEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	orch := &fakeOrchestrator{
		events: []chat.Event{{Type: chat.EventTextDelta, Text: "partial"}},
		err:    fmt.Errorf("%w: model exploded", chat.ErrGenerationFailed),
	}
	srv := newTestServer(t, orch)

	rec := postChat(t, srv, validBody)
	require.Equal(t, http.StatusOK, rec.Code, "status already committed when stream fails")

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	errEv := testutil.FindEvent(events, "error")
	require.NotNil(t, errEv)
	assert.Contains(t, errEv.Data, "generation_failed")
	assert.Nil(t, testutil.FindEvent(events, "finish"))
}

func TestToModelMessages(t *testing.T) {
	t.Parallel()

	msgs := toModelMessages([]wireMessage{
		{Role: "system", Parts: []wirePart{{Type: "text", Text: "sys"}}},
		{Role: "user", Parts: []wirePart{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}},
		{Role: "assistant", Parts: []wirePart{{Type: "text", Text: "reply"}}},
		{Role: "user", Parts: []wirePart{{Type: "image", Text: "ignored"}}},
	})

	require.Len(t, msgs, 3, "non-text-only message dropped")
	assert.Equal(t, "sys", msgs[0].Text())
	assert.Equal(t, "a\nb", msgs[1].Text(), "text parts joined")
	assert.Equal(t, "reply", msgs[2].Text())
}
