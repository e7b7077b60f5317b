package agent

import "errors"

var (
	// ErrMaxTurnsExceeded is returned when the model/tool loop hits its
	// step ceiling without producing a final answer. The turn fails; it is
	// never silently truncated.
	ErrMaxTurnsExceeded = errors.New("agent: max turns exceeded")

	// ErrUnknownIntent is returned when no agent is registered for the
	// routed intent.
	ErrUnknownIntent = errors.New("agent: no agent for intent")

	// ErrEmptyPrompt is returned when a turn arrives without user input.
	ErrEmptyPrompt = errors.New("agent: empty prompt")
)
