package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/agent"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
)

// chatHandler serves the chat save and stream endpoints.
//
// Endpoints:
//   - POST /api/v1/chat/save   - Idempotent message persistence
//   - POST /api/v1/chat/stream - One conversational turn over SSE
type chatHandler struct {
	store  *store.Store
	orch   *agent.Orchestrator
	logger *slog.Logger
}

type saveRequest struct {
	SessionID      uuid.UUID `json:"session_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Title          string    `json:"title,omitempty"`
}

type saveResponse struct {
	MessageID string `json:"message_id"`
	Created   bool   `json:"created"`
}

// save persists one message. Retries with the same idempotency key return the
// original outcome with created=false instead of a duplicate row.
func (h *chatHandler) save(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return
	}

	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.SessionID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, "missing_session_id", "session_id is required", h.logger)
		return
	}
	if req.Content == "" {
		WriteError(w, http.StatusBadRequest, "missing_content", "content is required", h.logger)
		return
	}

	sess, err := h.store.EnsureSession(r.Context(), req.SessionID, userID, req.Title)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "session_error", "failed to ensure session", h.logger)
		return
	}
	// An existing session belonging to someone else looks the same as no
	// session at all.
	if sess.OwnerID != userID {
		WriteError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}

	msg := &store.Message{
		SessionID:      req.SessionID,
		Role:           req.Role,
		Content:        req.Content,
		IdempotencyKey: req.IdempotencyKey,
	}
	inserted, err := h.store.SaveMessage(r.Context(), msg)
	if err != nil {
		if errors.Is(err, store.ErrInvalidRole) {
			WriteError(w, http.StatusBadRequest, "invalid_role", err.Error(), h.logger)
			return
		}
		WriteError(w, http.StatusInternalServerError, "save_error", "failed to save message", h.logger)
		return
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	WriteJSON(w, status, saveResponse{MessageID: msg.ID.String(), Created: inserted})
}

type streamRequest struct {
	SessionID       uuid.UUID `json:"session_id"`
	Prompt          string    `json:"prompt"`
	DocumentID      uuid.UUID `json:"document_id,omitempty"`
	DocumentContent string    `json:"document_content,omitempty"`
	IdempotencyKey  string    `json:"idempotency_key,omitempty"`
}

// Stream payload shapes. Every SSE data line is exactly one of these JSON
// objects, distinguished by its keys.
type contentPayload struct {
	Content string `json:"content"`
}

type thinkingPayload struct {
	ThinkingMessage string `json:"thinking_message"`
}

type toolPayload struct {
	ToolMessage toolMessage `json:"tool_message"`
}

type toolMessage struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
}

type documentUpdatePayload struct {
	DocumentUpdate string `json:"document_update"`
}

type needsDocumentPayload struct {
	NeedsDocumentContent bool   `json:"needs_document_content"`
	AgentContext         string `json:"agent_context"`
}

type errorPayload struct {
	Error errorDetail `json:"error"`
}

type donePayload struct {
	Done bool `json:"done"`
}

// stream runs one conversational turn and streams its events.
//
// Event order within a turn: thinking, then tool messages interleaved with
// content chunks, then document updates, then done. The done event is always
// the last write on a healthy stream.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return
	}

	var req streamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.SessionID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, "missing_session_id", "session_id is required", h.logger)
		return
	}
	if req.Prompt == "" {
		WriteError(w, http.StatusBadRequest, "missing_prompt", "prompt is required", h.logger)
		return
	}

	ctx := r.Context()

	sess, err := h.store.EnsureSession(ctx, req.SessionID, userID, "")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "session_error", "failed to ensure session", h.logger)
		return
	}
	if sess.OwnerID != userID {
		WriteError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}

	st, err := h.orch.Restore(ctx, req.SessionID, req.Prompt)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "state_error", "failed to restore conversation", h.logger)
		return
	}
	// The owner always comes from the authenticated request, never from a
	// restored checkpoint.
	st.OwnerID = userID
	if err := h.attachDocument(r, st, &req, userID); err != nil {
		WriteError(w, http.StatusNotFound, "document_not_found", "document not found", h.logger)
		return
	}

	// Persist the user message before any model work so a failed turn still
	// leaves the user's side of the conversation on record.
	userMsg := &store.Message{
		SessionID:      req.SessionID,
		Role:           store.RoleUser,
		Content:        req.Prompt,
		IdempotencyKey: req.IdempotencyKey,
	}
	if _, err := h.store.SaveMessage(ctx, userMsg); err != nil {
		WriteError(w, http.StatusInternalServerError, "save_error", "failed to save message", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sink := &eventSink{
		w:         w,
		flusher:   flusher,
		handler:   h,
		r:         r,
		sessionID: req.SessionID,
		state:     st,
		logger:    h.logger,
	}

	resp, err := h.orch.Run(ctx, st, sink.consume)
	if err != nil {
		// The error event was already emitted through the sink.
		h.logger.Error("turn failed",
			"session_id", req.SessionID,
			"error", err)
		return
	}

	if resp.FinalText != "" {
		if _, err := h.store.SaveMessage(ctx, &store.Message{
			SessionID: req.SessionID,
			Role:      store.RoleAssistant,
			Content:   resp.FinalText,
		}); err != nil {
			h.logger.Error("failed to save assistant message",
				"session_id", req.SessionID,
				"error", err)
		}
	}

	h.logger.Debug("stream completed",
		"session_id", req.SessionID,
		"intent", st.Intent,
		"tool_calls", len(resp.ToolCalls))
}

// attachDocument resolves the document for the turn: inline content wins,
// otherwise the referenced document row is loaded. A document owned by another
// user is reported as not found.
func (h *chatHandler) attachDocument(r *http.Request, st *agent.State, req *streamRequest, userID uuid.UUID) error {
	if req.DocumentContent != "" {
		st.DocumentContent = req.DocumentContent
		st.DocumentID = req.DocumentID
		return nil
	}
	if req.DocumentID == uuid.Nil {
		return nil
	}

	doc, err := h.store.Document(r.Context(), req.DocumentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return store.ErrDocumentNotFound
	}
	st.DocumentContent = doc.Content
	st.DocumentID = doc.ID
	return nil
}

// eventSink translates agent events to SSE data lines and persists the
// progress messages (thinking, tool calls, document updates) as they happen.
// Persistence failures are logged, never fatal to the stream.
type eventSink struct {
	w         io.Writer
	flusher   http.Flusher
	handler   *chatHandler
	r         *http.Request
	sessionID uuid.UUID
	state     *agent.State
	logger    *slog.Logger

	// openToolMsg is the persisted message ID of the tool call currently in
	// flight. Tools run sequentially within a turn.
	openToolMsg uuid.UUID
}

func (s *eventSink) consume(ev agent.Event) {
	switch ev.Type {
	case agent.EventTypeText:
		s.write(contentPayload{Content: ev.TextChunk})

	case agent.EventTypeThought:
		s.write(thinkingPayload{ThinkingMessage: ev.Thought})
		s.persistThought(ev.Thought)

	case agent.EventTypeToolStart:
		s.write(toolPayload{ToolMessage: toolMessage{
			Name:   ev.ToolName,
			Status: store.ToolStatusStarted,
		}})
		s.persistToolStart(ev.ToolName)

	case agent.EventTypeToolEnd:
		s.write(toolPayload{ToolMessage: toolMessage{
			Name:    ev.ToolName,
			Status:  ev.ToolCall.Status,
			Summary: ev.ToolCall.Summary,
		}})
		s.persistToolEnd(ev.ToolCall)

	case agent.EventTypeDocumentUpdate:
		s.write(documentUpdatePayload{DocumentUpdate: ev.Document})
		s.persistDocumentUpdate(ev.Document)

	case agent.EventTypeNeedsDocument:
		s.write(needsDocumentPayload{
			NeedsDocumentContent: true,
			AgentContext:         ev.AgentContext,
		})

	case agent.EventTypeError:
		s.write(errorPayload{Error: errorDetail{
			Code:    errorCode(ev.Error),
			Message: ev.Error.Error(),
		}})

	case agent.EventTypeComplete:
		s.write(donePayload{Done: true})
	}
}

// write sends one SSE data line: "data: <json>\n\n".
func (s *eventSink) write(payload any) {
	if err := writeData(s.w, s.flusher, payload); err != nil {
		// Write failure usually means the client disconnected.
		s.logger.Debug("failed to write SSE event", "error", err)
	}
}

func (s *eventSink) persistThought(thought string) {
	_, err := s.handler.store.SaveMessage(s.r.Context(), &store.Message{
		SessionID: s.sessionID,
		Role:      store.RoleAssistant,
		Content:   thought,
	})
	if err != nil {
		s.logger.Warn("failed to persist thinking message", "error", err)
	}
}

func (s *eventSink) persistToolStart(name string) {
	msg := &store.Message{
		SessionID: s.sessionID,
		Role:      store.RoleTool,
		Content:   name,
	}
	if _, err := s.handler.store.SaveMessage(s.r.Context(), msg); err != nil {
		s.logger.Warn("failed to persist tool message", "error", err)
		return
	}
	s.openToolMsg = msg.ID

	err := s.handler.store.CreateToolCall(s.r.Context(), &store.ToolCallRecord{
		MessageID:  msg.ID,
		ToolCallID: uuid.New().String(),
		Status:     store.ToolStatusStarted,
	})
	if err != nil {
		s.logger.Warn("failed to persist tool call record", "error", err)
	}
}

func (s *eventSink) persistToolEnd(call agent.ToolCall) {
	if s.openToolMsg == uuid.Nil {
		return
	}
	err := s.handler.store.FinalizeToolCall(s.r.Context(),
		s.openToolMsg, call.Status, call.Artifact, call.Summary)
	if err != nil {
		s.logger.Warn("failed to finalize tool call record", "error", err)
	}
	s.openToolMsg = uuid.Nil
}

func (s *eventSink) persistDocumentUpdate(content string) {
	if s.state.DocumentID == uuid.Nil {
		return
	}
	err := s.handler.store.UpdateDocumentContent(s.r.Context(), s.state.DocumentID, content)
	if err != nil {
		s.logger.Warn("failed to persist document update",
			"document_id", s.state.DocumentID,
			"error", err)
	}
}

// errorCode maps turn errors to stable client-facing codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, agent.ErrMaxTurnsExceeded):
		return "max_turns_exceeded"
	case errors.Is(err, agent.ErrEmptyPrompt):
		return "empty_prompt"
	case errors.Is(err, agent.ErrUnknownIntent):
		return "unknown_intent"
	default:
		return "stream_error"
	}
}

// writeData writes a single SSE data-only event with a JSON payload.
func writeData(w io.Writer, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}
