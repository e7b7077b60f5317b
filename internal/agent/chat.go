package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/tools"
)

// ChatAgentName identifies the general conversation agent.
const ChatAgentName = "general_chat"

const chatSystemPrompt = `You are a helpful assistant for a document-centric workspace.
Answer the user's message directly and concisely, in the user's language.
When the user wants to upload a file, use the issue_upload_url tool to hand
them an upload link. For questions about document contents, suggest they open
or attach the document.`

// FallbackResponse is returned when the model produces an empty answer.
const FallbackResponse = "죄송해요, 응답을 생성하지 못했어요. 다시 시도해 주세요."

// ChatAgent handles turns that need no document: conversation plus the
// upload-URL tool, so the model can hand out an upload link mid-chat.
type ChatAgent struct {
	loop toolLoop
}

// NewChatAgent creates the general conversation agent. The tool refs must
// include issue_upload_url and be registered with the same genkit instance.
func NewChatAgent(g *genkit.Genkit, modelName string, reg *tools.Registry, refs []ai.ToolRef, maxTurns int, logger *slog.Logger) *ChatAgent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &ChatAgent{}
	a.loop = toolLoop{
		g:            g,
		modelName:    modelName,
		registry:     reg,
		toolRefs:     refs,
		maxTurns:     maxTurns,
		logger:       logger,
		system:       func(*State) string { return chatSystemPrompt },
		prepareInput: a.injectOwner,
	}
	return a
}

func (a *ChatAgent) Name() string { return ChatAgentName }

// Execute runs the chat loop and streams the answer. An empty final answer
// falls back to a canned apology so the client never renders a blank turn.
func (a *ChatAgent) Execute(ctx context.Context, st *State, fn EmitFunc) (*Response, error) {
	resp, err := a.loop.run(ctx, st, fn)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(resp.FinalText) == "" {
		a.loop.logger.Warn("model returned empty chat response",
			"session_id", st.SessionID)
		emit(fn, Event{Type: EventTypeText, TextChunk: FallbackResponse})
		msg := ai.NewModelMessage(ai.NewTextPart(FallbackResponse))
		st.Append(msg)
		resp.FinalText = FallbackResponse
		resp.Messages = append(resp.Messages, msg)
	}
	return resp, nil
}

// injectOwner stamps the authenticated user onto issue_upload_url inputs.
// Whatever owner the model sent is discarded; the upload key prefix always
// belongs to the user behind the request.
func (a *ChatAgent) injectOwner(st *State, req *ai.ToolRequest) (json.RawMessage, error) {
	raw, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshaling input for tool %s: %w", req.Name, err)
	}
	if req.Name != tools.UploadURLToolName {
		return raw, nil
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("decoding upload input: %w", err)
	}
	if input == nil {
		input = make(map[string]any)
	}
	delete(input, "owner_id")
	if st.OwnerID != uuid.Nil {
		input["owner_id"] = st.OwnerID.String()
	}

	raw, err = json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding upload input: %w", err)
	}
	return raw, nil
}
