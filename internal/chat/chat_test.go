package chat_test

import (
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personachat/relay/internal/chat"
	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/search"
	"github.com/personachat/relay/internal/testutil"
)

type toolArgs struct {
	Query string `json:"query"`
}

// fixture wires a genkit instance, the mock model and test tools into an
// orchestrator.
type fixture struct {
	g    *genkit.Genkit
	mock *testutil.MockLLM
	orch *chat.Orchestrator
}

func newFixture(t *testing.T, mutate func(*chat.Config)) *fixture {
	t.Helper()

	g := genkit.Init(t.Context())
	require.NotNil(t, g)

	mock := testutil.NewMockLLM("fallback answer")
	mock.RegisterModel(g)

	webTool := genkit.DefineTool(g, "webSearch", "test web search",
		func(_ *ai.ToolContext, in toolArgs) ([]search.WebResult, error) {
			return []search.WebResult{
				{Title: "The Go Blog", URL: "https://go.dev/blog", Content: "content for " + in.Query},
			}, nil
		})
	failTool := genkit.DefineTool(g, "failing", "always fails",
		func(_ *ai.ToolContext, _ toolArgs) (string, error) {
			return "", assert.AnError
		})

	cfg := chat.Config{
		Genkit:       g,
		Logger:       log.NewNop(),
		Tools:        []ai.Tool{webTool, failTool},
		DefaultModel: testutil.MockModelName,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	orch, err := chat.New(cfg)
	require.NoError(t, err)

	return &fixture{g: g, mock: mock, orch: orch}
}

func userRequest(text string) chat.Request {
	return chat.Request{
		System:   "You are a test persona.",
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(text))},
	}
}

// collect gathers events while recording their order.
func collect(events *[]chat.Event) chat.Sink {
	return func(ev chat.Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func eventTypes(events []chat.Event) []chat.EventType {
	types := make([]chat.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestStreamPlainText(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddResponse("hello", "Hi there!")

	var events []chat.Event
	res, err := f.orch.Stream(t.Context(), userRequest("hello"), collect(&events))
	require.NoError(t, err)

	assert.Equal(t, "Hi there!", res.FinalText)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Empty(t, res.ToolRequests)

	require.NotEmpty(t, events)
	assert.Equal(t, chat.EventTextDelta, events[0].Type)
	assert.Equal(t, chat.EventFinish, events[len(events)-1].Type)
}

func TestStreamToolRound(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddToolResponse("search for go", []*ai.ToolRequest{
		{Name: "webSearch", Ref: "call-1", Input: map[string]any{"query": "go"}},
	}, "Found it on the Go blog.")

	var events []chat.Event
	res, err := f.orch.Stream(t.Context(), userRequest("search for go"), collect(&events))
	require.NoError(t, err)

	assert.Equal(t, "Found it on the Go blog.", res.FinalText)
	assert.Equal(t, 2, res.Steps)
	require.Len(t, res.ToolRequests, 1)

	types := eventTypes(events)
	assert.Equal(t, []chat.EventType{
		chat.EventToolInput,
		chat.EventToolOutput,
		chat.EventSource,
		chat.EventTextDelta,
		chat.EventFinish,
	}, types)

	input := events[0].Tool
	output := events[1].Tool
	assert.Equal(t, "call-1", input.Ref)
	assert.Equal(t, "webSearch", input.Name)
	assert.Equal(t, input.Ref, output.Ref, "input and output share the call ref")

	src := events[2].Source
	require.NotNil(t, src)
	assert.Equal(t, "https://go.dev/blog", src.URL)
	assert.Equal(t, "The Go Blog", src.Title)
	assert.NotEmpty(t, src.ID)
}

func TestStreamAssignsMissingToolRefs(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddToolResponse("search", []*ai.ToolRequest{
		{Name: "webSearch", Input: map[string]any{"query": "go"}},
	}, "done")

	var events []chat.Event
	_, err := f.orch.Stream(t.Context(), userRequest("search"), collect(&events))
	require.NoError(t, err)

	require.Equal(t, chat.EventToolInput, events[0].Type)
	assert.NotEmpty(t, events[0].Tool.Ref, "ref generated when the model omits one")
}

func TestStreamStepBound(t *testing.T) {
	f := newFixture(t, func(cfg *chat.Config) { cfg.MaxSteps = 3 })
	f.mock.AddToolLoop("keep going", []*ai.ToolRequest{
		{Name: "webSearch", Ref: "loop", Input: map[string]any{"query": "more"}},
	})

	var events []chat.Event
	res, err := f.orch.Stream(t.Context(), userRequest("keep going"), collect(&events))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Steps, "loop stops at the configured bound")
	assert.Len(t, f.mock.Calls(), 3)
	assert.Equal(t, "step-cap", res.FinishReason)
	assert.NotEmpty(t, res.FinalText, "fallback text when the model never answers")
	assert.Equal(t, chat.EventFinish, events[len(events)-1].Type)
}

func TestStreamAbsorbsToolFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddToolResponse("break things", []*ai.ToolRequest{
		{Name: "failing", Ref: "f1", Input: map[string]any{"query": "x"}},
	}, "Recovered gracefully.")

	var events []chat.Event
	res, err := f.orch.Stream(t.Context(), userRequest("break things"), collect(&events))
	require.NoError(t, err, "tool failure must not fail the completion")

	assert.Equal(t, "Recovered gracefully.", res.FinalText)

	types := eventTypes(events)
	assert.Contains(t, types, chat.EventToolError)
	assert.NotContains(t, types, chat.EventToolOutput)

	for _, ev := range events {
		if ev.Type == chat.EventToolError {
			assert.NotEmpty(t, ev.Tool.Err)
			out, ok := ev.Tool.Output.(map[string]any)
			require.True(t, ok)
			assert.NotEmpty(t, out["error"], "failure fed back to the model as output")
		}
	}
}

func TestStreamAbsorbsUnknownTool(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddToolResponse("mystery", []*ai.ToolRequest{
		{Name: "doesNotExist", Ref: "u1", Input: map[string]any{}},
	}, "Moving on.")

	var events []chat.Event
	res, err := f.orch.Stream(t.Context(), userRequest("mystery"), collect(&events))
	require.NoError(t, err)

	assert.Equal(t, "Moving on.", res.FinalText)

	errEvents := 0
	for _, ev := range events {
		if ev.Type == chat.EventToolError {
			errEvents++
			assert.Contains(t, ev.Tool.Err, "unknown tool")
		}
	}
	assert.Equal(t, 1, errEvents)
}

func TestStreamRequiresMessages(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.orch.Stream(t.Context(), chat.Request{System: "sys"}, nil)
	assert.ErrorIs(t, err, chat.ErrNoMessages)
}

func TestExecuteWithoutSink(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddResponse("hello", "Hi!")

	res, err := f.orch.Execute(t.Context(), userRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "Hi!", res.FinalText)
}

func TestWebSearchModelOverride(t *testing.T) {
	g := genkit.Init(t.Context())
	require.NotNil(t, g)

	defaultMock := testutil.NewMockLLM("from default model")
	defaultMock.RegisterNamed(g, "mock/default")
	searchMock := testutil.NewMockLLM("from search model")
	searchMock.RegisterNamed(g, "mock/search")

	tool := genkit.DefineTool(g, "webSearch", "test",
		func(_ *ai.ToolContext, _ toolArgs) (string, error) { return "ok", nil })

	orch, err := chat.New(chat.Config{
		Genkit:       g,
		Logger:       log.NewNop(),
		Tools:        []ai.Tool{tool},
		DefaultModel: "mock/default",
		SearchModel:  "mock/search",
	})
	require.NoError(t, err)

	res, err := orch.Execute(t.Context(), chat.Request{
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart("anything"))},
	})
	require.NoError(t, err)
	assert.Equal(t, "from default model", res.FinalText)

	res, err = orch.Execute(t.Context(), chat.Request{
		Messages:  []*ai.Message{ai.NewUserMessage(ai.NewTextPart("anything"))},
		WebSearch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "from search model", res.FinalText, "webSearch forces the search model")

	res, err = orch.Execute(t.Context(), chat.Request{
		Messages:  []*ai.Message{ai.NewUserMessage(ai.NewTextPart("anything"))},
		Model:     "mock/search",
		WebSearch: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "from search model", res.FinalText, "explicit model honored without webSearch")
}

func TestNewValidation(t *testing.T) {
	g := genkit.Init(t.Context())
	require.NotNil(t, g)
	tool := genkit.DefineTool(g, "webSearch", "test",
		func(_ *ai.ToolContext, _ toolArgs) (string, error) { return "", nil })

	_, err := chat.New(chat.Config{Logger: log.NewNop(), Tools: []ai.Tool{tool}, DefaultModel: "m"})
	assert.ErrorContains(t, err, "genkit")

	_, err = chat.New(chat.Config{Genkit: g, Tools: []ai.Tool{tool}, DefaultModel: "m"})
	assert.ErrorContains(t, err, "logger")

	_, err = chat.New(chat.Config{Genkit: g, Logger: log.NewNop(), DefaultModel: "m"})
	assert.ErrorContains(t, err, "tool")

	_, err = chat.New(chat.Config{Genkit: g, Logger: log.NewNop(), Tools: []ai.Tool{tool}})
	assert.ErrorContains(t, err, "model")
}
