package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
)

// calendarHandler serves event CRUD against the caller's default calendar,
// which is created lazily on first use.
type calendarHandler struct {
	store  *store.Store
	logger *slog.Logger
}

type eventView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       *time.Time `json:"end_at,omitempty"`
}

func toEventView(ev *store.Event) eventView {
	return eventView{
		ID:          ev.ID.String(),
		Title:       ev.Title,
		Description: ev.Description,
		StartAt:     ev.StartAt,
		EndAt:       ev.EndAt,
	}
}

type eventRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
}

func (h *calendarHandler) listEvents(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.defaultCalendar(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	events, err := h.store.ListEvents(r.Context(), cal.ID, limit, offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_error", "failed to list events", h.logger)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, toEventView(ev))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": views})
}

func (h *calendarHandler) createEvent(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.defaultCalendar(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.Title == "" || req.StartAt.IsZero() {
		WriteError(w, http.StatusBadRequest, "missing_fields", "title and start_at are required", h.logger)
		return
	}

	ev, err := h.store.CreateEvent(r.Context(), &store.Event{
		CalendarID:  cal.ID,
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrEventEndBeforeStart) {
			WriteError(w, http.StatusBadRequest, "invalid_range", "end_at must not precede start_at", h.logger)
			return
		}
		WriteError(w, http.StatusInternalServerError, "create_error", "failed to create event", h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, toEventView(ev))
}

func (h *calendarHandler) updateEvent(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.defaultCalendar(w, r)
	if !ok {
		return
	}
	eventID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid event id", h.logger)
		return
	}

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	err = h.store.UpdateEvent(r.Context(), &store.Event{
		ID:          eventID,
		CalendarID:  cal.ID,
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEventNotFound):
			WriteError(w, http.StatusNotFound, "event_not_found", "event not found", h.logger)
		case errors.Is(err, store.ErrEventEndBeforeStart):
			WriteError(w, http.StatusBadRequest, "invalid_range", "end_at must not precede start_at", h.logger)
		default:
			WriteError(w, http.StatusInternalServerError, "update_error", "failed to update event", h.logger)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *calendarHandler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.defaultCalendar(w, r)
	if !ok {
		return
	}
	eventID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid event id", h.logger)
		return
	}

	if err := h.store.DeleteEvent(r.Context(), cal.ID, eventID); err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			WriteError(w, http.StatusNotFound, "event_not_found", "event not found", h.logger)
			return
		}
		WriteError(w, http.StatusInternalServerError, "delete_error", "failed to delete event", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *calendarHandler) defaultCalendar(w http.ResponseWriter, r *http.Request) (*store.Calendar, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return nil, false
	}

	cal, err := h.store.DefaultCalendar(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "calendar_error", "failed to load calendar", h.logger)
		return nil, false
	}
	return cal, true
}
