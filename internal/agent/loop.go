package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/tools"
)

// toolLoop is the shared model/tool loop behind the tool-using agents.
//
// Each iteration is one model call. When the response carries tool requests,
// every request is dispatched through the registry, the tool responses are
// appended to the conversation, and the loop calls the model again. A
// response without tool requests ends the loop. The ceiling bounds the number
// of model calls; reaching it is a fatal error for the turn, never a silent
// truncation.
type toolLoop struct {
	g         *genkit.Genkit
	modelName string
	registry  *tools.Registry
	toolRefs  []ai.ToolRef
	maxTurns  int
	logger    *slog.Logger

	// system renders the system prompt for the current state. It is
	// re-evaluated every iteration because the edit agent's document
	// changes between model calls.
	system func(*State) string

	// prepareInput may rewrite a tool request's input before dispatch;
	// nil means pass the model's input through unchanged.
	prepareInput func(*State, *ai.ToolRequest) (json.RawMessage, error)

	// applyResult folds a tool result into state before the next model
	// call. It returns true when the document content was replaced.
	applyResult func(*State, *ai.ToolRequest, *tools.Result, EmitFunc) bool
}

func (l *toolLoop) run(ctx context.Context, st *State, fn EmitFunc) (*Response, error) {
	if strings.TrimSpace(st.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	userMsg := ai.NewUserMessage(ai.NewTextPart(st.Prompt))
	messages := make([]*ai.Message, 0, len(st.History)+1)
	messages = append(messages, st.History...)
	messages = append(messages, userMsg)

	newMessages := []*ai.Message{userMsg}
	var (
		final      strings.Builder
		calls      []ToolCall
		docUpdated bool
	)

	for turn := 0; ; turn++ {
		if turn >= l.maxTurns {
			l.logger.Error("tool loop hit step ceiling",
				"session_id", st.SessionID,
				"max_turns", l.maxTurns)
			return nil, fmt.Errorf("%w after %d model calls", ErrMaxTurnsExceeded, l.maxTurns)
		}

		opts := []ai.GenerateOption{
			ai.WithModelName(l.modelName),
			ai.WithSystem(l.system(st)),
			ai.WithMessages(messages...),
		}
		if len(l.toolRefs) > 0 {
			// Tool requests come back to this loop; genkit never runs
			// the handlers itself.
			opts = append(opts,
				ai.WithTools(l.toolRefs...),
				ai.WithReturnToolRequests(true),
			)
		}
		if fn != nil {
			opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
				if text := chunk.Text(); text != "" {
					emit(fn, Event{Type: EventTypeText, TextChunk: text})
				}
				return nil
			}))
		}

		resp, err := genkit.Generate(ctx, l.g, opts...)
		if err != nil {
			return nil, fmt.Errorf("generating model response: %w", err)
		}

		final.WriteString(resp.Text())
		messages = append(messages, resp.Message)
		newMessages = append(newMessages, resp.Message)

		reqs := resp.ToolRequests()
		if len(reqs) == 0 {
			break
		}

		parts := make([]*ai.Part, 0, len(reqs))
		for _, req := range reqs {
			call, part, err := l.runTool(ctx, st, req, fn)
			if err != nil {
				return nil, err
			}
			if l.applyResultUpdated(st, req, call, fn) {
				docUpdated = true
			}
			calls = append(calls, call.summary)
			parts = append(parts, part)
		}

		toolMsg := ai.NewMessage(ai.RoleTool, nil, parts...)
		messages = append(messages, toolMsg)
		newMessages = append(newMessages, toolMsg)
	}

	st.Append(newMessages...)

	return &Response{
		FinalText:       final.String(),
		Messages:        newMessages,
		ToolCalls:       calls,
		DocumentUpdated: docUpdated,
	}, nil
}

// toolOutcome pairs the dispatch result with its event summary.
type toolOutcome struct {
	result  *tools.Result
	summary ToolCall
}

// runTool dispatches one tool request and builds the tool response part.
// Tool failures are structured error results, not Go errors: the loop keeps
// going and the model sees the failure in the tool response.
func (l *toolLoop) runTool(ctx context.Context, st *State, req *ai.ToolRequest, fn EmitFunc) (toolOutcome, *ai.Part, error) {
	emit(fn, Event{Type: EventTypeToolStart, ToolName: req.Name})

	input, err := l.marshalInput(st, req)
	if err != nil {
		return toolOutcome{}, nil, err
	}

	res := l.registry.Dispatch(ctx, req.Name, input)

	summary := ToolCall{
		Name:     req.Name,
		Status:   res.Status,
		Summary:  res.Content,
		Artifact: res.Artifact,
	}
	emit(fn, Event{Type: EventTypeToolEnd, ToolName: req.Name, ToolCall: summary})

	part := ai.NewToolResponsePart(&ai.ToolResponse{
		Name: req.Name,
		Ref:  req.Ref,
		Output: map[string]any{
			"status":  res.Status,
			"content": res.Content,
		},
	})
	return toolOutcome{result: res, summary: summary}, part, nil
}

func (l *toolLoop) applyResultUpdated(st *State, req *ai.ToolRequest, out toolOutcome, fn EmitFunc) bool {
	if l.applyResult == nil {
		return false
	}
	return l.applyResult(st, req, out.result, fn)
}

func (l *toolLoop) marshalInput(st *State, req *ai.ToolRequest) (json.RawMessage, error) {
	if l.prepareInput != nil {
		return l.prepareInput(st, req)
	}
	raw, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshaling input for tool %s: %w", req.Name, err)
	}
	return raw, nil
}
