package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/router"
)

// State is the conversation state threaded through one turn.
//
// History is append-only: agents add messages but never rewrite or reorder
// prior entries. DocumentContent is the one mutable field the edit agent is
// allowed to replace, which it does wholesale from tool output.
type State struct {
	SessionID uuid.UUID     `json:"session_id"`
	Prompt    string        `json:"prompt"`
	Intent    router.Intent `json:"intent,omitempty"`

	// OwnerID is the authenticated user behind this turn. It comes from the
	// request, never from a checkpoint, so a stale or tampered checkpoint can
	// never change whose documents the tools touch.
	OwnerID uuid.UUID `json:"-"`

	// DocumentContent is the document attached to this conversation, empty
	// when none is attached.
	DocumentContent string `json:"document_content,omitempty"`

	// DocumentID identifies the attached document when it came from
	// persistent storage rather than an inline payload.
	DocumentID uuid.UUID `json:"document_id,omitempty"`

	// NeedsDocumentContent is set when the router decided a document is
	// required but none is attached; the client resolves it by resending
	// the turn with content.
	NeedsDocumentContent bool `json:"needs_document_content,omitempty"`

	History []*ai.Message `json:"history"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewState builds the state for one turn on top of prior history.
func NewState(sessionID uuid.UUID, prompt string, history []*ai.Message) *State {
	return &State{
		SessionID: sessionID,
		Prompt:    prompt,
		History:   history,
		UpdatedAt: time.Now(),
	}
}

// Append adds messages to the history. Existing entries are never touched.
func (s *State) Append(msgs ...*ai.Message) {
	s.History = append(s.History, msgs...)
	s.UpdatedAt = time.Now()
}

// HasDocument reports whether document content is attached.
func (s *State) HasDocument() bool {
	return s.DocumentContent != ""
}

// Marshal serializes the state for checkpointing.
func (s *State) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling conversation state: %w", err)
	}
	return data, nil
}

// UnmarshalState restores a checkpointed state. A nil payload yields nil.
func UnmarshalState(data json.RawMessage) (*State, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling conversation state: %w", err)
	}
	return &s, nil
}
