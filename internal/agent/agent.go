package agent

import (
	"context"

	"github.com/firebase/genkit/go/ai"
)

// Response is the complete result of one agent execution.
type Response struct {
	// FinalText is the model's final answer, the concatenation of every
	// text chunk emitted during the turn.
	FinalText string

	// Messages are the new history entries produced by this turn,
	// including intermediate tool request/response messages.
	Messages []*ai.Message

	// ToolCalls summarizes the tool executions of the turn, in order.
	ToolCalls []ToolCall

	// DocumentUpdated reports whether the state's document content was
	// replaced during the turn.
	DocumentUpdated bool
}

// Agent handles one conversational turn for a single intent.
type Agent interface {
	// Name returns the agent's stable identifier.
	Name() string

	// Execute runs the turn against the given state, emitting events as
	// it goes. It mutates only st.History (append-only) and, for the edit
	// agent, st.DocumentContent.
	Execute(ctx context.Context, st *State, fn EmitFunc) (*Response, error)
}
