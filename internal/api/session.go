package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
)

// sessionHandler serves session CRUD and message history.
type sessionHandler struct {
	store  *store.Store
	logger *slog.Logger
}

type sessionView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSessionView(s *store.Session) sessionView {
	return sessionView{
		ID:        s.ID.String(),
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// list returns the caller's sessions, most recently active first.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return
	}

	limit, offset := pagination(r)
	sessions, err := h.store.ListSessions(r.Context(), userID, limit, offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_error", "failed to list sessions", h.logger)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toSessionView(s))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return
	}

	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	s, err := h.store.CreateSession(r.Context(), userID, req.Title)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "create_error", "failed to create session", h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, toSessionView(s))
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, toSessionView(s))
}

type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// messages returns a session's history in insertion order.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	msgs, err := h.store.Messages(r.Context(), s.ID, limit, offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_error", "failed to list messages", h.logger)
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"messages": views})
}

// delete soft-deletes a session; its messages stay on record.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteSession(r.Context(), s.ID); err != nil {
		WriteError(w, http.StatusInternalServerError, "delete_error", "failed to delete session", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedSession loads the {id} path session and enforces ownership. A session
// owned by someone else reads as not found.
func (h *sessionHandler) ownedSession(w http.ResponseWriter, r *http.Request) (*store.Session, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return nil, false
	}

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid session id", h.logger)
		return nil, false
	}

	s, err := h.store.Session(r.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) || (err == nil && s.OwnerID != userID) {
		WriteError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return nil, false
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "session_error", "failed to load session", h.logger)
		return nil, false
	}
	return s, true
}

// pagination reads limit/offset query parameters with store defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return store.NormalizeLimit(limit), offset
}
