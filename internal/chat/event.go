package chat

// EventType discriminates stream events emitted during a completion.
type EventType string

const (
	// EventTextDelta carries one chunk of the model's visible answer text.
	EventTextDelta EventType = "text-delta"

	// EventReasoningDelta carries one chunk of model reasoning, when the
	// provider exposes it.
	EventReasoningDelta EventType = "reasoning-delta"

	// EventToolInput signals that a tool call's arguments are complete and
	// the call is about to execute.
	EventToolInput EventType = "tool-input-available"

	// EventToolOutput signals a successful tool execution with its output.
	EventToolOutput EventType = "tool-output-available"

	// EventToolError signals a failed tool execution. The completion
	// continues; the failure is also fed back to the model as tool output.
	EventToolError EventType = "tool-output-error"

	// EventSource carries one citable web source discovered by a tool.
	EventSource EventType = "source"

	// EventFinish signals the end of a successful completion.
	EventFinish EventType = "finish"
)

// ToolInvocation describes one tool call across its lifecycle. The same Ref
// ties the input, output and error events of a call together.
type ToolInvocation struct {
	Ref    string
	Name   string
	Input  any
	Output any
	Err    string // non-empty only on EventToolError
}

// Source is one citable web document surfaced during the completion.
type Source struct {
	ID    string
	URL   string
	Title string
}

// Event is the closed union of stream events. Exactly the fields implied by
// Type are set.
type Event struct {
	Type         EventType
	Text         string          // EventTextDelta, EventReasoningDelta
	Tool         *ToolInvocation // EventToolInput, EventToolOutput, EventToolError
	Source       *Source         // EventSource
	FinishReason string          // EventFinish
}

// Sink receives stream events in emission order. It is never called
// concurrently. Returning an error aborts the completion.
type Sink func(Event) error
