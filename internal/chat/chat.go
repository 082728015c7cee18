// Package chat runs the bounded tool-calling completion loop.
//
// The orchestrator owns the loop: each step is a single model call with tool
// requests returned instead of auto-dispatched, so tool execution, error
// absorption and event emission stay under its control.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/search"
	"github.com/personachat/relay/internal/tools"
)

const (
	// defaultMaxSteps bounds the completion loop when Config leaves it unset.
	// One step is one model call; tool-call rounds consume steps.
	defaultMaxSteps = 5

	// maxAllowedSteps is the hard ceiling regardless of configuration.
	maxAllowedSteps = 10

	// fallbackResponseMessage is emitted when the model finishes with no
	// visible text and no pending tool requests.
	fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
)

// Sentinel errors for orchestrator operations.
var (
	// ErrNoMessages indicates the request carried an empty conversation.
	ErrNoMessages = errors.New("no messages")

	// ErrGenerationFailed indicates the model call itself failed.
	ErrGenerationFailed = errors.New("generation failed")
)

// Request is one completion request.
type Request struct {
	System    string        // rendered system prompt
	Messages  []*ai.Message // full conversation, oldest first, last is the user turn
	Model     string        // provider-qualified model name; empty selects the default
	WebSearch bool          // forces the search-tuned model when one is configured
}

// Response is the terminal result of a completion.
type Response struct {
	FinalText    string
	FinishReason string
	Steps        int               // model calls consumed
	ToolRequests []*ai.ToolRequest // every tool call made across all steps
}

// Config contains all required parameters for the Orchestrator.
type Config struct {
	Genkit *genkit.Genkit
	Logger log.Logger
	Tools  []ai.Tool // pre-registered via tools.Register

	DefaultModel string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	SearchModel  string // model used when Request.WebSearch is set; empty disables the override
	MaxSteps     int    // 0 selects defaultMaxSteps
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	if cfg.DefaultModel == "" {
		return errors.New("default model is required")
	}
	return nil
}

// Orchestrator drives persona completions against a Genkit instance.
//
// It is stateless across requests; all configuration is captured immutably at
// construction, so a single instance serves concurrent requests.
type Orchestrator struct {
	g            *genkit.Genkit
	logger       log.Logger
	defaultModel string
	searchModel  string
	maxSteps     int

	toolRefs []ai.ToolRef
	registry map[string]ai.Tool // name -> tool, for dispatching returned requests
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if maxSteps > maxAllowedSteps {
		maxSteps = maxAllowedSteps
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	registry := make(map[string]ai.Tool, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
		registry[t.Name()] = t
	}

	o := &Orchestrator{
		g:            cfg.Genkit,
		logger:       cfg.Logger,
		defaultModel: cfg.DefaultModel,
		searchModel:  cfg.SearchModel,
		maxSteps:     maxSteps,
		toolRefs:     toolRefs,
		registry:     registry,
	}

	o.logger.Info("orchestrator initialized",
		"tools", len(registry),
		"max_steps", o.maxSteps,
		"default_model", o.defaultModel)

	return o, nil
}

// Execute runs a completion without streaming. Convenience wrapper around
// Stream with a discarding sink.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Response, error) {
	return o.Stream(ctx, req, func(Event) error { return nil })
}

// Stream runs the completion loop, emitting events to sink in order.
//
// Each iteration is one model call. When the model returns tool requests they
// are executed concurrently, their outputs (or absorbed errors) are appended
// to the conversation as tool messages, and the loop continues. The loop ends
// when the model answers without tool requests or the step bound is reached.
func (o *Orchestrator) Stream(ctx context.Context, req Request, sink Sink) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	if sink == nil {
		sink = func(Event) error { return nil }
	}

	model := o.resolveModel(req)
	history := req.Messages

	res := &Response{FinishReason: "stop"}
	var finalText strings.Builder

	for step := 0; step < o.maxSteps; step++ {
		res.Steps = step + 1

		resp, err := o.generate(ctx, req.System, history, model, sink)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		if text := resp.Text(); text != "" {
			finalText.WriteString(text)
		}
		if resp.Message != nil {
			history = append(history, resp.Message)
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			if resp.FinishReason != "" {
				res.FinishReason = string(resp.FinishReason)
			}
			break
		}

		res.ToolRequests = append(res.ToolRequests, requests...)

		if step == o.maxSteps-1 {
			// Out of steps: the pending tool calls are dropped and whatever
			// text the model has produced so far stands as the answer.
			res.FinishReason = "step-cap"
			o.logger.Warn("step bound reached with pending tool calls",
				"max_steps", o.maxSteps,
				"tool_calls", len(res.ToolRequests))
			break
		}

		toolMsg, err := o.runTools(ctx, requests, sink)
		if err != nil {
			return nil, err
		}
		history = append(history, toolMsg)
	}

	res.FinalText = finalText.String()
	if strings.TrimSpace(res.FinalText) == "" {
		o.logger.Warn("model produced no visible text", "steps", res.Steps)
		res.FinalText = fallbackResponseMessage
		if err := sink(Event{Type: EventTextDelta, Text: res.FinalText}); err != nil {
			return nil, err
		}
	}

	if err := sink(Event{Type: EventFinish, FinishReason: res.FinishReason}); err != nil {
		return nil, err
	}
	return res, nil
}

// resolveModel picks the model for this request. An explicit web-search
// request overrides the caller's model choice with the search-tuned one.
func (o *Orchestrator) resolveModel(req Request) string {
	if req.WebSearch && o.searchModel != "" {
		return o.searchModel
	}
	if req.Model != "" {
		return req.Model
	}
	return o.defaultModel
}

// generate performs one model call, forwarding text and reasoning chunks to
// sink as they arrive. Tool requests are returned, not auto-dispatched.
func (o *Orchestrator) generate(ctx context.Context, system string, history []*ai.Message, model string, sink Sink) (*ai.ModelResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithSystem(system),
		ai.WithMessages(history...),
		ai.WithModelName(model),
		ai.WithTools(o.toolRefs...),
		ai.WithReturnToolRequests(true),
		ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			for _, part := range chunk.Content {
				switch part.Kind {
				case ai.PartText:
					if part.Text == "" {
						continue
					}
					if err := sink(Event{Type: EventTextDelta, Text: part.Text}); err != nil {
						return err
					}
				case ai.PartReasoning:
					if part.Text == "" {
						continue
					}
					if err := sink(Event{Type: EventReasoningDelta, Text: part.Text}); err != nil {
						return err
					}
				}
			}
			return nil
		}),
	}

	return genkit.Generate(ctx, o.g, opts...)
}

// toolResult is one executed tool call, in request order.
type toolResult struct {
	request *ai.ToolRequest
	ref     string
	output  any
	err     error
}

// runTools executes one round of tool requests concurrently and returns the
// tool message to append to the conversation. Events are emitted after all
// executions finish, in request order, so the sink is never called
// concurrently.
//
// Tool failures never fail the round: the error is emitted as an event and
// fed back to the model as the call's output, leaving recovery to the model.
func (o *Orchestrator) runTools(ctx context.Context, requests []*ai.ToolRequest, sink Sink) (*ai.Message, error) {
	for _, tr := range requests {
		ref := tr.Ref
		if ref == "" {
			ref = uuid.NewString()
		}
		if err := sink(Event{Type: EventToolInput, Tool: &ToolInvocation{
			Ref:   ref,
			Name:  tr.Name,
			Input: tr.Input,
		}}); err != nil {
			return nil, err
		}
		// Persist the generated ref so the matching tool response part and
		// the output event carry the same identifier.
		tr.Ref = ref
	}

	results := make([]toolResult, len(requests))
	var wg sync.WaitGroup
	for i, tr := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.runTool(ctx, tr)
		}()
	}
	wg.Wait()

	parts := make([]*ai.Part, 0, len(results))
	for _, r := range results {
		inv := &ToolInvocation{
			Ref:    r.ref,
			Name:   r.request.Name,
			Input:  r.request.Input,
			Output: r.output,
		}

		if r.err != nil {
			inv.Err = r.err.Error()
			inv.Output = map[string]any{"error": r.err.Error()}
			o.logger.Warn("tool execution failed", "tool", r.request.Name, "error", r.err)
			if err := sink(Event{Type: EventToolError, Tool: inv}); err != nil {
				return nil, err
			}
		} else {
			if err := sink(Event{Type: EventToolOutput, Tool: inv}); err != nil {
				return nil, err
			}
			if r.request.Name == tools.WebSearchToolName {
				if err := emitSources(r.output, sink); err != nil {
					return nil, err
				}
			}
		}

		parts = append(parts, &ai.Part{
			Kind: ai.PartToolResponse,
			ToolResponse: &ai.ToolResponse{
				Name:   r.request.Name,
				Ref:    r.ref,
				Output: inv.Output,
			},
		})
	}

	return &ai.Message{Role: ai.RoleTool, Content: parts}, nil
}

// runTool dispatches one request against the registry.
func (o *Orchestrator) runTool(ctx context.Context, tr *ai.ToolRequest) toolResult {
	res := toolResult{request: tr, ref: tr.Ref}

	tool, ok := o.registry[tr.Name]
	if !ok {
		res.err = fmt.Errorf("unknown tool %q", tr.Name)
		return res
	}

	out, err := tool.RunRaw(ctx, tr.Input)
	if err != nil {
		res.err = err
		return res
	}
	res.output = out
	return res
}

// emitSources surfaces web search results as citable source events.
func emitSources(output any, sink Sink) error {
	for _, r := range webResults(output) {
		if r.URL == "" {
			continue
		}
		if err := sink(Event{Type: EventSource, Source: &Source{
			ID:    uuid.NewString(),
			URL:   r.URL,
			Title: r.Title,
		}}); err != nil {
			return err
		}
	}
	return nil
}

// webResults recovers the typed result list from a tool output. The output
// is the handler's return value when dispatched in-process, but may arrive
// JSON-decoded as generic values; both shapes are handled.
func webResults(output any) []search.WebResult {
	if typed, ok := output.([]search.WebResult); ok {
		return typed
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil
	}
	var decoded []search.WebResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded
}
