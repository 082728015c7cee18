package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/personachat/relay/internal/chat"
	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/persona"
	"github.com/personachat/relay/internal/sse"
)

// maxRequestBody limits the chat request size.
const maxRequestBody = 1024 * 1024

// Orchestrator runs one completion and streams its events.
// Satisfied by *chat.Orchestrator; tests substitute fakes.
type Orchestrator interface {
	Stream(ctx context.Context, req chat.Request, sink chat.Sink) (*chat.Response, error)
}

// Wire shapes of POST /api/chat.
type chatRequest struct {
	Messages      []wireMessage `json:"messages"`
	Model         string        `json:"model,omitempty"`
	WebSearch     bool          `json:"webSearch,omitempty"`
	Persona       string        `json:"persona,omitempty"`
	SendSources   *bool         `json:"sendSources,omitempty"`   // nil = true
	SendReasoning *bool         `json:"sendReasoning,omitempty"` // nil = true
}

type wireMessage struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SSE payload shapes, one per event type.
type startPayload struct {
	MessageID string `json:"messageId"`
}

type deltaPayload struct {
	Delta string `json:"delta"`
}

type toolInputPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Input      any    `json:"input"`
}

type toolOutputPayload struct {
	ToolCallID string `json:"toolCallId"`
	Output     any    `json:"output"`
}

type toolErrorPayload struct {
	ToolCallID string `json:"toolCallId"`
	ErrorText  string `json:"errorText"`
}

type sourcePayload struct {
	SourceID string `json:"sourceId"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

type finishPayload struct {
	Reason string `json:"reason"`
}

// chatHandler serves the streaming chat endpoint.
type chatHandler struct {
	orch     Orchestrator
	personas *persona.Store
	timeout  time.Duration
	logger   log.Logger
}

// serve handles POST /api/chat.
//
// Validation happens before any stream byte is written, so malformed requests
// get a plain JSON error with a real status code. Once the SSE stream starts,
// failures can only be reported as in-stream error events.
func (h *chatHandler) serve(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	messages := toModelMessages(req.Messages)
	if len(messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "messages are required", h.logger)
		return
	}

	rec := h.personas.Resolve(req.Persona)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	ctx = persona.NewContext(ctx, rec)

	writer, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	requestID, _ := requestIDFromContext(r.Context())
	h.logger.Debug("chat stream started",
		"request_id", requestID,
		"persona", rec.ID,
		"web_search", req.WebSearch,
		"messages", len(messages),
	)

	messageID := uuid.NewString()
	if err := writer.WriteEvent("start", startPayload{MessageID: messageID}); err != nil {
		return
	}

	sendSources := req.SendSources == nil || *req.SendSources
	sendReasoning := req.SendReasoning == nil || *req.SendReasoning

	start := time.Now()
	res, streamErr := h.orch.Stream(ctx, chat.Request{
		System:    persona.BuildSystemPrompt(rec),
		Messages:  messages,
		Model:     req.Model,
		WebSearch: req.WebSearch,
	}, func(ev chat.Event) error {
		return writeChatEvent(writer, ev, sendSources, sendReasoning)
	})

	if streamErr != nil {
		h.streamError(writer, requestID, streamErr)
		return
	}

	h.logger.Info("chat stream completed",
		"request_id", requestID,
		"persona", rec.ID,
		"steps", res.Steps,
		"tool_calls", len(res.ToolRequests),
		"duration", time.Since(start),
	)
}

// writeChatEvent maps one orchestrator event onto the wire.
func writeChatEvent(writer *sse.Writer, ev chat.Event, sendSources, sendReasoning bool) error {
	switch ev.Type {
	case chat.EventTextDelta:
		return writer.WriteEvent("text-delta", deltaPayload{Delta: ev.Text})

	case chat.EventReasoningDelta:
		if !sendReasoning {
			return nil
		}
		return writer.WriteEvent("reasoning-delta", deltaPayload{Delta: ev.Text})

	case chat.EventToolInput:
		return writer.WriteEvent("tool-input-available", toolInputPayload{
			ToolCallID: ev.Tool.Ref,
			ToolName:   ev.Tool.Name,
			Input:      ev.Tool.Input,
		})

	case chat.EventToolOutput:
		return writer.WriteEvent("tool-output-available", toolOutputPayload{
			ToolCallID: ev.Tool.Ref,
			Output:     ev.Tool.Output,
		})

	case chat.EventToolError:
		return writer.WriteEvent("tool-output-error", toolErrorPayload{
			ToolCallID: ev.Tool.Ref,
			ErrorText:  ev.Tool.Err,
		})

	case chat.EventSource:
		if !sendSources {
			return nil
		}
		return writer.WriteEvent("source", sourcePayload{
			SourceID: ev.Source.ID,
			URL:      ev.Source.URL,
			Title:    ev.Source.Title,
		})

	case chat.EventFinish:
		return writer.WriteEvent("finish", finishPayload{Reason: ev.FinishReason})

	default:
		return nil
	}
}

// streamError reports a completion failure as an in-stream error event.
func (h *chatHandler) streamError(writer *sse.Writer, requestID string, err error) {
	code := "stream_error"
	switch {
	case errors.Is(err, chat.ErrGenerationFailed):
		code = "generation_failed"
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.Is(err, context.Canceled):
		// Client went away; nothing to report.
		h.logger.Info("chat stream canceled", "request_id", requestID)
		return
	}

	h.logger.Error("chat stream failed", "request_id", requestID, "code", code, "error", err)
	_ = writer.WriteError(code, err.Error())
}

// toModelMessages converts wire messages to model messages.
// Unknown roles and messages with no usable text are dropped rather than
// rejected, so partial client payloads still produce a completion.
func toModelMessages(msgs []wireMessage) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		var role ai.Role
		switch m.Role {
		case "user":
			role = ai.RoleUser
		case "assistant", "model":
			role = ai.RoleModel
		case "system":
			role = ai.RoleSystem
		default:
			continue
		}

		var sb strings.Builder
		for _, p := range m.Parts {
			if p.Type != "text" || p.Text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(p.Text)
		}
		if sb.Len() == 0 {
			continue
		}

		out = append(out, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(sb.String())},
		})
	}
	return out
}
