// Package router classifies each incoming user turn into the agent that
// should handle it.
//
// Classification is a single structured-output model call: the model fills a
// typed decision struct constrained to the closed intent set, so there is no
// substring matching over free text. Unparseable or out-of-set responses fall
// back to general chat without surfacing an error to the caller.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Intent is the closed set of routing decisions.
type Intent string

const (
	// IntentGeneralChat handles everything that is not document work.
	IntentGeneralChat Intent = "general_chat"

	// IntentDocumentSearch retrieves passages from the user's documents.
	IntentDocumentSearch Intent = "document_search"

	// IntentDocumentEdit rewrites the attached document.
	IntentDocumentEdit Intent = "document_edit"

	// IntentRequestDocument asks the client to supply document content
	// before a document-requiring agent can run.
	IntentRequestDocument Intent = "request_document"
)

// Valid reports whether the intent belongs to the closed set.
func (i Intent) Valid() bool {
	switch i {
	case IntentGeneralChat, IntentDocumentSearch, IntentDocumentEdit, IntentRequestDocument:
		return true
	}
	return false
}

// RequiresDocument reports whether the intent's agent needs document content
// attached to the conversation before it can run.
func (i Intent) RequiresDocument() bool {
	return i == IntentDocumentSearch || i == IntentDocumentEdit
}

const classifierSystemPrompt = `You are the intent router of a document-aware assistant.
Classify the user's latest message, in the context of the conversation, into exactly one intent:

- document_search: the user wants to find, look up, or ask about content in their documents
  (e.g. "회의록을 찾아줘", "what does the contract say about notice periods?")
- document_edit: the user wants to change, rewrite, or add to the attached document
- general_chat: anything else — greetings, questions unrelated to documents, small talk

When a document-editing session is active, prefer document_edit for follow-up instructions.
Respond with the intent only.`

// Request carries everything the router needs for one decision.
type Request struct {
	// History is the prior conversation, oldest first.
	History []*ai.Message

	// Prompt is the user's latest message.
	Prompt string

	// HasDocument reports whether document content is attached to state.
	HasDocument bool

	// EditingActive reports whether a document-editing session is in
	// progress, biasing follow-up instructions toward document_edit.
	EditingActive bool
}

// decision is the structured output schema filled by the model. The closed
// set is enforced in code rather than by schema validation so an off-script
// label degrades to general chat instead of failing the turn.
type decision struct {
	Intent string `json:"intent" jsonschema:"description=One of: document_search, document_edit, general_chat"`
}

// Decision is the router's final answer for a turn.
type Decision struct {
	// Intent is the routing decision after the document override.
	Intent Intent

	// Classified is the classification before the override, so a
	// request_document decision still names the agent that was wanted.
	Classified Intent
}

// Router selects the agent for each turn.
type Router struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
}

// New creates a Router using the given classifier model.
func New(g *genkit.Genkit, modelName string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{g: g, modelName: modelName, logger: logger}
}

// Route returns exactly one intent for the turn.
//
// The document override is applied after classification: when the model picks
// a document-requiring intent and no content is attached, the decision
// becomes request_document regardless of the raw classification. A response
// outside the closed set defaults to general_chat; only transport-level
// failures of the model call are returned as errors.
func (r *Router) Route(ctx context.Context, req Request) (Decision, error) {
	messages := make([]*ai.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)

	contextNote := ""
	if req.EditingActive {
		contextNote = "\n(An active document-editing session is in progress.)"
	}
	messages = append(messages, ai.NewUserMessage(
		ai.NewTextPart(req.Prompt+contextNote),
	))

	out, _, err := genkit.GenerateData[decision](ctx, r.g,
		ai.WithModelName(r.modelName),
		ai.WithSystem(classifierSystemPrompt),
		ai.WithMessages(messages...),
	)
	if err != nil {
		return Decision{}, fmt.Errorf("classifying intent: %w", err)
	}

	intent := Intent(out.Intent)
	if !intent.Valid() || intent == IntentRequestDocument {
		// request_document is never a raw classification; it is only
		// reached through the override below.
		r.logger.Warn("unclassifiable intent, defaulting to general chat",
			"raw", out.Intent)
		intent = IntentGeneralChat
	}

	if intent.RequiresDocument() && !req.HasDocument {
		r.logger.Debug("document required but absent, requesting document",
			"classified", intent)
		return Decision{Intent: IntentRequestDocument, Classified: intent}, nil
	}

	return Decision{Intent: intent, Classified: intent}, nil
}
