package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultCalendar returns the user's default calendar, creating it lazily.
// The partial unique index on (owner_id) WHERE is_default keeps this
// race-free: concurrent creators collide on the index and re-read.
func (s *Store) DefaultCalendar(ctx context.Context, ownerID uuid.UUID) (*Calendar, error) {
	cal, err := s.defaultCalendar(ctx, ownerID)
	if err == nil {
		return cal, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("getting default calendar: %w", err)
	}

	var created Calendar
	insertErr := s.db.QueryRow(ctx,
		`INSERT INTO calendars (owner_id, name, is_default)
		 VALUES ($1, 'default', TRUE)
		 ON CONFLICT (owner_id) WHERE is_default DO NOTHING
		 RETURNING id, owner_id, name, is_default, created_at`,
		ownerID,
	).Scan(&created.ID, &created.OwnerID, &created.Name, &created.IsDefault, &created.CreatedAt)
	if errors.Is(insertErr, pgx.ErrNoRows) {
		// Lost the race; the winner's row exists now.
		cal, err = s.defaultCalendar(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("getting default calendar after race: %w", err)
		}
		return cal, nil
	}
	if insertErr != nil {
		return nil, fmt.Errorf("creating default calendar: %w", insertErr)
	}
	return &created, nil
}

func (s *Store) defaultCalendar(ctx context.Context, ownerID uuid.UUID) (*Calendar, error) {
	var cal Calendar
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, name, is_default, created_at
		 FROM calendars WHERE owner_id = $1 AND is_default`,
		ownerID,
	).Scan(&cal.ID, &cal.OwnerID, &cal.Name, &cal.IsDefault, &cal.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

// CreateEvent inserts a calendar event. EndAt, when present, must not be
// before StartAt.
func (s *Store) CreateEvent(ctx context.Context, ev *Event) (*Event, error) {
	if ev.EndAt != nil && ev.EndAt.Before(ev.StartAt) {
		return nil, ErrEventEndBeforeStart
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	var out Event
	err := s.db.QueryRow(ctx,
		`INSERT INTO calendar_events (id, calendar_id, title, description, start_at, end_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, calendar_id, title, description, start_at, end_at, created_at, updated_at`,
		ev.ID, ev.CalendarID, ev.Title, ev.Description, ev.StartAt, ev.EndAt,
	).Scan(&out.ID, &out.CalendarID, &out.Title, &out.Description, &out.StartAt,
		&out.EndAt, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating event: %w", err)
	}
	return &out, nil
}

// Event retrieves one event by ID, scoped to a calendar.
func (s *Store) Event(ctx context.Context, calendarID, eventID uuid.UUID) (*Event, error) {
	var out Event
	err := s.db.QueryRow(ctx,
		`SELECT id, calendar_id, title, description, start_at, end_at, created_at, updated_at
		 FROM calendar_events WHERE id = $1 AND calendar_id = $2`,
		eventID, calendarID,
	).Scan(&out.ID, &out.CalendarID, &out.Title, &out.Description, &out.StartAt,
		&out.EndAt, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %s: %w", eventID, err)
	}
	return &out, nil
}

// ListEvents lists a calendar's events ordered by start time.
func (s *Store) ListEvents(ctx context.Context, calendarID uuid.UUID, limit, offset int) ([]*Event, error) {
	limit = NormalizeLimit(limit)

	rows, err := s.db.Query(ctx,
		`SELECT id, calendar_id, title, description, start_at, end_at, created_at, updated_at
		 FROM calendar_events WHERE calendar_id = $1
		 ORDER BY start_at
		 LIMIT $2 OFFSET $3`,
		calendarID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.CalendarID, &ev.Title, &ev.Description,
			&ev.StartAt, &ev.EndAt, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// UpdateEvent replaces an event's mutable fields.
func (s *Store) UpdateEvent(ctx context.Context, ev *Event) error {
	if ev.EndAt != nil && ev.EndAt.Before(ev.StartAt) {
		return ErrEventEndBeforeStart
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE calendar_events
		 SET title = $3, description = $4, start_at = $5, end_at = $6, updated_at = now()
		 WHERE id = $1 AND calendar_id = $2`,
		ev.ID, ev.CalendarID, ev.Title, ev.Description, ev.StartAt, ev.EndAt,
	)
	if err != nil {
		return fmt.Errorf("updating event %s: %w", ev.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// DeleteEvent removes an event from a calendar.
func (s *Store) DeleteEvent(ctx context.Context, calendarID, eventID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM calendar_events WHERE id = $1 AND calendar_id = $2`,
		eventID, calendarID,
	)
	if err != nil {
		return fmt.Errorf("deleting event %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}
