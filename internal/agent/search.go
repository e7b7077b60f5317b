package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/tools"
)

// SearchAgentName identifies the document search agent.
const SearchAgentName = "document_search"

const searchSystemPrompt = `You are a document search assistant.
Use the search_documents tool to find passages relevant to the user's request,
then answer from the retrieved passages only. Cite which passage supports each
claim. If nothing relevant is found, say so instead of guessing.
Answer in the user's language.`

const searchThought = "관련 문서를 찾고 있어요..."

// SearchAgent answers questions from the user's documents through the
// bounded search loop. Retrieval is confined to the requesting user's
// namespace; the model cannot widen it.
type SearchAgent struct {
	loop toolLoop
}

// NewSearchAgent creates the document search agent. The tool refs must
// include search_documents and be registered with the same genkit instance.
func NewSearchAgent(g *genkit.Genkit, modelName string, reg *tools.Registry, refs []ai.ToolRef, maxTurns int, logger *slog.Logger) *SearchAgent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &SearchAgent{}
	a.loop = toolLoop{
		g:            g,
		modelName:    modelName,
		registry:     reg,
		toolRefs:     refs,
		maxTurns:     maxTurns,
		logger:       logger,
		system:       func(*State) string { return searchSystemPrompt },
		prepareInput: a.injectNamespace,
	}
	return a
}

func (a *SearchAgent) Name() string { return SearchAgentName }

func (a *SearchAgent) Execute(ctx context.Context, st *State, fn EmitFunc) (*Response, error) {
	emit(fn, Event{Type: EventTypeThought, Thought: searchThought})
	return a.loop.run(ctx, st, fn)
}

// injectNamespace scopes search_documents calls to the authenticated user's
// vector namespace. Any namespace the model sent is discarded.
func (a *SearchAgent) injectNamespace(st *State, req *ai.ToolRequest) (json.RawMessage, error) {
	raw, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshaling input for tool %s: %w", req.Name, err)
	}
	if req.Name != tools.SearchToolName {
		return raw, nil
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("decoding search input: %w", err)
	}
	if input == nil {
		input = make(map[string]any)
	}
	delete(input, "namespace")
	if st.OwnerID != uuid.Nil {
		input["namespace"] = st.OwnerID.String()
	}

	raw, err = json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding search input: %w", err)
	}
	return raw, nil
}
