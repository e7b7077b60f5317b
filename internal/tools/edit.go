package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EditToolName is the dispatch key of the document edit tool.
const EditToolName = "edit_document"

// EditTool applies an edit to the document attached to the conversation.
// The agent loop injects the current document content into the input before
// dispatch; the tool's Content output becomes the new document content in
// conversation state.
type EditTool struct{}

// NewEditTool creates the document edit tool.
func NewEditTool() *EditTool { return &EditTool{} }

func (*EditTool) Name() string { return EditToolName }

func (*EditTool) Description() string {
	return "Edit the attached document. Input: {\"mode\": \"replace\"|\"substitute\"|\"append\", " +
		"\"content\": string (replace/append), \"find\": string, \"replace_with\": string (substitute)}. " +
		"Returns the full updated document."
}

type editInput struct {
	Mode        string `json:"mode"`
	Content     string `json:"content"`
	Find        string `json:"find"`
	ReplaceWith string `json:"replace_with"`

	// Document is the current document content, injected by the agent
	// loop — the model never supplies it.
	Document string `json:"document"`
}

// Execute applies the edit and returns the complete updated document.
func (*EditTool) Execute(_ context.Context, input json.RawMessage) (*Result, error) {
	var in editInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("parsing edit input: %w", err)
	}

	var updated string
	switch in.Mode {
	case "replace", "":
		if in.Content == "" {
			return nil, fmt.Errorf("replace mode requires content")
		}
		updated = in.Content
	case "append":
		if in.Content == "" {
			return nil, fmt.Errorf("append mode requires content")
		}
		updated = strings.TrimRight(in.Document, "\n") + "\n\n" + in.Content
	case "substitute":
		if in.Find == "" {
			return nil, fmt.Errorf("substitute mode requires find")
		}
		if !strings.Contains(in.Document, in.Find) {
			return nil, fmt.Errorf("text %q not found in document", in.Find)
		}
		updated = strings.ReplaceAll(in.Document, in.Find, in.ReplaceWith)
	default:
		return nil, fmt.Errorf("unknown edit mode %q", in.Mode)
	}

	return &Result{
		Status: StatusSuccess,
		Artifact: map[string]any{
			"mode":  in.Mode,
			"bytes": len(updated),
		},
		Content: updated,
	}, nil
}
