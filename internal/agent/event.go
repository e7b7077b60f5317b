package agent

// EventType identifies the kind of event an agent emits while running.
type EventType int

const (
	// EventTypeText is an incremental chunk of the model's answer.
	EventTypeText EventType = iota

	// EventTypeThought is a progress note shown while the agent works.
	EventTypeThought

	// EventTypeToolStart marks the beginning of a tool execution.
	EventTypeToolStart

	// EventTypeToolEnd carries the outcome of a tool execution.
	EventTypeToolEnd

	// EventTypeDocumentUpdate carries the full replacement document after
	// an edit.
	EventTypeDocumentUpdate

	// EventTypeNeedsDocument asks the client to attach document content
	// and resend the turn.
	EventTypeNeedsDocument

	// EventTypeError reports a fatal error for the turn.
	EventTypeError

	// EventTypeComplete closes the turn.
	EventTypeComplete
)

// Event is emitted by agents through the emit callback during execution.
type Event struct {
	Type      EventType
	TextChunk string
	Thought   string
	ToolName  string
	ToolCall  ToolCall
	Document  string
	// AgentContext names the agent the router wanted when it asked for a
	// document, so the client can resume with the same intent.
	AgentContext string
	Error        error
}

// ToolCall summarizes one tool execution for event consumers.
type ToolCall struct {
	Name     string
	Status   string
	Summary  string
	Artifact map[string]any
}

// EmitFunc receives events as the agent produces them. Implementations must
// be fast; agents call it synchronously from the loop.
type EmitFunc func(Event)

// emit invokes fn when it is non-nil, so agents can run without a consumer.
func emit(fn EmitFunc, ev Event) {
	if fn != nil {
		fn(ev)
	}
}
