package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/tools"
)

// EditAgentName identifies the document edit agent.
const EditAgentName = "document_edit"

const editThought = "문서를 수정하고 있어요..."

// EditAgent rewrites the attached document through the bounded edit loop.
//
// The current document is never sent by the model: the loop injects it into
// every edit_document call, and a successful edit replaces the state's
// document content wholesale before the next model call, so consecutive edits
// within one turn compose.
type EditAgent struct {
	loop toolLoop
}

// NewEditAgent creates the document edit agent. The tool refs must include
// edit_document and be registered with the same genkit instance.
func NewEditAgent(g *genkit.Genkit, modelName string, reg *tools.Registry, refs []ai.ToolRef, maxTurns int, logger *slog.Logger) *EditAgent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &EditAgent{}
	a.loop = toolLoop{
		g:            g,
		modelName:    modelName,
		registry:     reg,
		toolRefs:     refs,
		maxTurns:     maxTurns,
		logger:       logger,
		system:       editSystemPrompt,
		prepareInput: a.injectDocument,
		applyResult:  a.applyEdit,
	}
	return a
}

func (a *EditAgent) Name() string { return EditAgentName }

func (a *EditAgent) Execute(ctx context.Context, st *State, fn EmitFunc) (*Response, error) {
	emit(fn, Event{Type: EventTypeThought, Thought: editThought})
	return a.loop.run(ctx, st, fn)
}

// editSystemPrompt is rebuilt every iteration so the model always sees the
// document as amended by prior edits within the same turn.
func editSystemPrompt(st *State) string {
	return fmt.Sprintf(`You are a document editing assistant.
Apply the user's requested changes with the edit_document tool. Do not include
the current document in the tool input; it is supplied automatically. After
editing, briefly describe what changed, in the user's language.

Current document:
---
%s
---`, st.DocumentContent)
}

// injectDocument adds the current document content to edit_document inputs.
// Other tools pass through unchanged.
func (a *EditAgent) injectDocument(st *State, req *ai.ToolRequest) (json.RawMessage, error) {
	raw, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshaling input for tool %s: %w", req.Name, err)
	}
	if req.Name != tools.EditToolName {
		return raw, nil
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("decoding edit input: %w", err)
	}
	if input == nil {
		input = make(map[string]any)
	}
	input["document"] = st.DocumentContent

	raw, err = json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding edit input: %w", err)
	}
	return raw, nil
}

// applyEdit replaces the document in state with the tool's full output and
// pushes the replacement to the client. Failed edits leave state untouched.
func (a *EditAgent) applyEdit(st *State, req *ai.ToolRequest, res *tools.Result, fn EmitFunc) bool {
	if req.Name != tools.EditToolName || res.Status != tools.StatusSuccess {
		return false
	}
	st.DocumentContent = res.Content
	emit(fn, Event{Type: EventTypeDocumentUpdate, Document: res.Content})
	return true
}
