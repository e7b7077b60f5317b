package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/router"
)

// CheckpointStore persists conversation state between turns, keyed by
// session. The orchestrator is the only writer.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, sessionID uuid.UUID, state json.RawMessage) error
	Checkpoint(ctx context.Context, sessionID uuid.UUID) (json.RawMessage, error)
}

// Orchestrator routes each turn to one agent and checkpoints the resulting
// state. It owns the request_document short-circuit: when the router asks for
// a document, no agent runs and the client is told which agent was wanted.
type Orchestrator struct {
	router      *router.Router
	agents      map[router.Intent]Agent
	checkpoints CheckpointStore

	// historyLimit caps how many checkpointed messages seed a restored turn;
	// zero means unlimited.
	historyLimit int

	logger *slog.Logger
}

// NewOrchestrator wires the router to its agents.
func NewOrchestrator(r *router.Router, checkpoints CheckpointStore, historyLimit int, logger *slog.Logger, agents ...Agent) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	byIntent := make(map[router.Intent]Agent, len(agents))
	for _, a := range agents {
		byIntent[router.Intent(a.Name())] = a
	}
	return &Orchestrator{
		router:       r,
		agents:       byIntent,
		checkpoints:  checkpoints,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Restore loads the checkpointed state for a session and seeds a new turn
// from it: history (trimmed to the limit), document, and the last decided
// intent, which keeps an editing session routed as editing. A session
// without a checkpoint starts from empty history.
func (o *Orchestrator) Restore(ctx context.Context, sessionID uuid.UUID, prompt string) (*State, error) {
	data, err := o.checkpoints.Checkpoint(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	prev, err := UnmarshalState(data)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return NewState(sessionID, prompt, nil), nil
	}

	st := NewState(sessionID, prompt, o.trimHistory(prev.History))
	st.Intent = prev.Intent
	st.DocumentContent = prev.DocumentContent
	st.DocumentID = prev.DocumentID
	return st, nil
}

// trimHistory keeps the most recent historyLimit messages. A trimmed history
// never starts with tool responses whose requests were cut off.
func (o *Orchestrator) trimHistory(history []*ai.Message) []*ai.Message {
	if o.historyLimit <= 0 || len(history) <= o.historyLimit {
		return history
	}
	trimmed := history[len(history)-o.historyLimit:]
	for len(trimmed) > 0 && trimmed[0].Role == ai.RoleTool {
		trimmed = trimmed[1:]
	}
	return trimmed
}

// Run executes one conversational turn: route, execute the selected agent,
// checkpoint, complete. Exactly one agent runs per turn.
func (o *Orchestrator) Run(ctx context.Context, st *State, fn EmitFunc) (*Response, error) {
	dec, err := o.router.Route(ctx, router.Request{
		History:       st.History,
		Prompt:        st.Prompt,
		HasDocument:   st.HasDocument(),
		EditingActive: st.Intent == router.IntentDocumentEdit,
	})
	if err != nil {
		o.fail(fn, err)
		return nil, err
	}

	o.logger.Debug("routed turn",
		"session_id", st.SessionID,
		"intent", dec.Intent,
		"classified", dec.Classified)

	if dec.Intent == router.IntentRequestDocument {
		st.NeedsDocumentContent = true
		emit(fn, Event{
			Type:         EventTypeNeedsDocument,
			AgentContext: string(dec.Classified),
		})
		emit(fn, Event{Type: EventTypeComplete})
		return &Response{}, nil
	}
	st.Intent = dec.Intent
	st.NeedsDocumentContent = false

	a, ok := o.agents[dec.Intent]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownIntent, dec.Intent)
		o.fail(fn, err)
		return nil, err
	}

	resp, err := a.Execute(ctx, st, fn)
	if err != nil {
		o.fail(fn, err)
		return nil, err
	}

	if err := o.checkpoint(ctx, st); err != nil {
		// The turn already succeeded; losing one checkpoint degrades
		// resumption, not correctness.
		o.logger.Error("failed to save checkpoint",
			"session_id", st.SessionID,
			"error", err)
	}

	emit(fn, Event{Type: EventTypeComplete})
	return resp, nil
}

// fail reports a turn error and still closes the stream: clients always see
// a terminal done event, error or not.
func (o *Orchestrator) fail(fn EmitFunc, err error) {
	emit(fn, Event{Type: EventTypeError, Error: err})
	emit(fn, Event{Type: EventTypeComplete})
}

func (o *Orchestrator) checkpoint(ctx context.Context, st *State) error {
	data, err := st.Marshal()
	if err != nil {
		return err
	}
	return o.checkpoints.SaveCheckpoint(ctx, st.SessionID, data)
}
