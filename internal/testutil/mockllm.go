// Package testutil provides deterministic fakes and parsers shared by tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the provider-qualified name the mock registers under.
const MockModelName = "mock/test-model"

// MockLLM provides deterministic model responses for testing.
// It matches the last user message against registered patterns and returns
// the corresponding response.
//
// When the conversation's last message is a tool response, the matched rule's
// text is returned without tool requests, so a tool-calling rule models one
// full request/execute/answer round. Rules registered with AddToolLoop keep
// requesting tools on every call, for exercising the step bound.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	responses []mockRule
	fallback  string
	calls     []MockCall
}

type mockRule struct {
	pattern    string            // substring match in user message, lowercase
	response   string            // text response
	reasoning  string            // optional reasoning part emitted before text
	tools      []*ai.ToolRequest // tool calls to request (nil = text only)
	toolsAgain bool              // keep requesting tools after tool responses
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage string // last user message text
	Response    string // response text returned
	ToolRound   bool   // true when the call answered a tool response
}

// NewMockLLM creates a mock model with the given fallback response.
// The fallback is returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair.
// When a user message contains the pattern (case-insensitive), the response
// is returned. Patterns are checked in registration order; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddReasoningResponse registers a pattern that emits a reasoning part before
// the text response.
func (m *MockLLM) AddReasoningResponse(pattern, reasoning, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:   strings.ToLower(pattern),
		reasoning: reasoning,
		response:  response,
	})
}

// AddToolResponse registers a pattern that triggers tool calls on the first
// round and answers with textResponse once tool output is present.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, textResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: textResponse,
		tools:    tools,
	})
}

// AddToolLoop registers a pattern that requests the same tools on every call,
// regardless of tool responses already in the conversation.
func (m *MockLLM) AddToolLoop(pattern string, tools []*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:    strings.ToLower(pattern),
		tools:      tools,
		toolsAgain: true,
	})
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears all recorded calls (keeps registered responses).
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// RegisterModel registers the mock as a Genkit model and returns a reference.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return m.RegisterNamed(g, MockModelName)
}

// RegisterNamed registers the mock under a custom provider-qualified name.
// Lets one test wire several mocks with distinct behavior.
func (m *MockLLM) RegisterNamed(g *genkit.Genkit, name string) ai.Model {
	return genkit.DefineModel(g, name, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

// generate is the Genkit model function.
func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	toolRound := len(req.Messages) > 0 && req.Messages[len(req.Messages)-1].Role == ai.RoleTool

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.responses {
		if strings.Contains(lower, m.responses[i].pattern) {
			matched = &m.responses[i]
			break
		}
	}

	responseText := m.fallback
	var reasoning string
	var toolRequests []*ai.ToolRequest
	if matched != nil {
		responseText = matched.response
		reasoning = matched.reasoning
		if len(matched.tools) > 0 && (!toolRound || matched.toolsAgain) {
			toolRequests = matched.tools
			if !matched.toolsAgain {
				responseText = "" // text arrives on the post-tool round
			}
		}
	}

	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		Response:    responseText,
		ToolRound:   toolRound,
	})
	m.mu.Unlock()

	if cb != nil {
		if reasoning != "" {
			_ = cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{{Kind: ai.PartReasoning, Text: reasoning}},
			})
		}
		if responseText != "" {
			_ = cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(responseText)},
			})
		}
	}

	var parts []*ai.Part
	if reasoning != "" {
		parts = append(parts, &ai.Part{Kind: ai.PartReasoning, Text: reasoning})
	}
	for _, tr := range toolRequests {
		parts = append(parts, &ai.Part{Kind: ai.PartToolRequest, ToolRequest: tr})
	}
	if responseText != "" {
		parts = append(parts, ai.NewTextPart(responseText))
	}
	if len(parts) == 0 {
		parts = append(parts, ai.NewTextPart(""))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}
