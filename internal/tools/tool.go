// Package tools provides the tool set invocable by the model mid-conversation
// and the dispatch table that executes tool requests.
//
// Tool dispatch is deliberately decoupled from any model framework's binding
// convention: the agent loop asks the model for tool requests, looks each one
// up in the Registry by name, and folds the Result back into conversation
// state. Adding a tool means implementing Tool and registering it.
package tools

import (
	"context"
	"encoding/json"
)

// Statuses mirror the tool_call_records schema.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Tool is one external capability the model can invoke.
type Tool interface {
	// Name is the unique dispatch key surfaced to the model.
	Name() string

	// Description tells the model when to use this tool.
	Description() string

	// Execute runs the tool. Input is the model-provided JSON arguments.
	// Implementations return an error only for genuine failures; the
	// Registry converts it to an error Result at the boundary.
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Result is the structured outcome of one tool execution.
type Result struct {
	// Status is StatusSuccess or StatusError.
	Status string

	// Artifact is the structured payload persisted to the ToolCallRecord
	// and, where relevant, folded into conversation state.
	Artifact map[string]any

	// Content is the raw text handed back to the model.
	Content string
}

// ErrorResult builds the structured error artifact for a failed execution.
// The model sees the error text and decides whether to retry or apologize;
// failures never propagate past the tool boundary.
func ErrorResult(toolName string, err error) *Result {
	return &Result{
		Status: StatusError,
		Artifact: map[string]any{
			"tool":  toolName,
			"error": err.Error(),
		},
		Content: "tool " + toolName + " failed: " + err.Error(),
	}
}
