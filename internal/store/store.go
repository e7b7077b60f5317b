package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store depends on. Defined by the
// consumer so tests can substitute a transaction or a stub.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages chat persistence with a PostgreSQL backend.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a new Store instance. A nil logger falls back to slog.Default.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateUser inserts a user account.
func (s *Store) CreateUser(ctx context.Context, email, name string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (email, name) VALUES ($1, $2)
		 RETURNING id, email, name, created_at`,
		email, name,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &u, nil
}

// UserByEmail looks up a user account by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return &u, nil
}

// CreateSession creates a new conversation session for ownerID.
func (s *Store) CreateSession(ctx context.Context, ownerID uuid.UUID, title string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx,
		`INSERT INTO chat_sessions (owner_id, title) VALUES ($1, $2)
		 RETURNING id, owner_id, title, deleted, created_at, updated_at`,
		ownerID, title,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.Deleted, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "owner", ownerID)
	return &sess, nil
}

// Session retrieves a session by ID. Soft-deleted sessions are not returned.
func (s *Store) Session(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, title, deleted, created_at, updated_at
		 FROM chat_sessions WHERE id = $1 AND NOT deleted`,
		sessionID,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.Deleted, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// EnsureSession returns the session with the given ID, creating it lazily
// when absent. A zero sessionID always creates a fresh session.
func (s *Store) EnsureSession(ctx context.Context, sessionID, ownerID uuid.UUID, title string) (*Session, error) {
	if sessionID == uuid.Nil {
		return s.CreateSession(ctx, ownerID, title)
	}

	sess, err := s.Session(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		var created Session
		insertErr := s.db.QueryRow(ctx,
			`INSERT INTO chat_sessions (id, owner_id, title) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET updated_at = now()
			 RETURNING id, owner_id, title, deleted, created_at, updated_at`,
			sessionID, ownerID, title,
		).Scan(&created.ID, &created.OwnerID, &created.Title, &created.Deleted,
			&created.CreatedAt, &created.UpdatedAt)
		if insertErr != nil {
			return nil, fmt.Errorf("lazily creating session %s: %w", sessionID, insertErr)
		}
		s.logger.Debug("lazily created session", "id", created.ID, "owner", ownerID)
		return &created, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions lists a user's sessions with pagination, most recently
// updated first. Soft-deleted sessions are excluded.
func (s *Store) ListSessions(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Session, error) {
	limit = NormalizeLimit(limit)

	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, title, deleted, created_at, updated_at
		 FROM chat_sessions
		 WHERE owner_id = $1 AND NOT deleted
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.Deleted,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession soft-deletes a session. Messages are retained for audit and
// excluded from listings through the session's deleted flag.
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE chat_sessions SET deleted = TRUE, updated_at = now() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	s.logger.Debug("deleted session", "id", sessionID)
	return nil
}

// SaveMessage appends one message. When IdempotencyKey is set, insertion is
// at-most-once: a duplicate key leaves the existing row untouched and returns
// inserted=false. The unique partial index makes this atomic rather than
// check-then-act.
func (s *Store) SaveMessage(ctx context.Context, msg *Message) (inserted bool, err error) {
	if !validRole(msg.Role) {
		return false, fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	var key *string
	if msg.IdempotencyKey != "" {
		key = &msg.IdempotencyKey
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, key,
	)
	if err != nil {
		return false, fmt.Errorf("saving message: %w", err)
	}

	inserted = tag.RowsAffected() > 0
	if inserted {
		// Keep the session's recency ordering in sync.
		if _, err := s.db.Exec(ctx,
			`UPDATE chat_sessions SET updated_at = now() WHERE id = $1`,
			msg.SessionID,
		); err != nil {
			s.logger.Warn("touching session after message save", "error", err)
		}
	} else {
		s.logger.Debug("duplicate message ignored", "idempotency_key", msg.IdempotencyKey)
	}
	return inserted, nil
}

// Messages returns a session's messages ordered by insertion
// (created_at, then id as a tiebreaker for identical timestamps).
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	limit = NormalizeLimit(limit)

	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, COALESCE(idempotency_key, ''), created_at
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content,
			&m.IdempotencyKey, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// CreateToolCall records a tool invocation start against a persisted message.
func (s *Store) CreateToolCall(ctx context.Context, rec *ToolCallRecord) error {
	artifact, err := json.Marshal(rec.Artifact)
	if err != nil {
		return fmt.Errorf("marshaling tool artifact: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO tool_call_records (message_id, tool_call_id, status, artifact, raw_content)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.MessageID, rec.ToolCallID, rec.Status, artifact, rec.RawContent,
	)
	if err != nil {
		return fmt.Errorf("creating tool call record: %w", err)
	}
	return nil
}

// FinalizeToolCall decides a started tool call: success or error, with the
// completed artifact payload and raw output.
func (s *Store) FinalizeToolCall(ctx context.Context, messageID uuid.UUID, status string, artifact map[string]any, rawContent string) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshaling tool artifact: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE tool_call_records SET status = $2, artifact = $3, raw_content = $4
		 WHERE message_id = $1`,
		messageID, status, payload, rawContent,
	)
	if err != nil {
		return fmt.Errorf("finalizing tool call record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalizing tool call record: no record for message %s", messageID)
	}
	return nil
}

// ToolCall retrieves the tool-call record attached to a message.
func (s *Store) ToolCall(ctx context.Context, messageID uuid.UUID) (*ToolCallRecord, error) {
	var rec ToolCallRecord
	var artifact []byte
	err := s.db.QueryRow(ctx,
		`SELECT message_id, tool_call_id, status, artifact, raw_content
		 FROM tool_call_records WHERE message_id = $1`,
		messageID,
	).Scan(&rec.MessageID, &rec.ToolCallID, &rec.Status, &artifact, &rec.RawContent)
	if err != nil {
		return nil, fmt.Errorf("getting tool call record: %w", err)
	}
	if err := json.Unmarshal(artifact, &rec.Artifact); err != nil {
		return nil, fmt.Errorf("unmarshaling tool artifact: %w", err)
	}
	return &rec, nil
}

// SaveCheckpoint stores the serialized conversation state for a session,
// replacing any previous checkpoint. Keyed externally by session id so a
// restarted instance can resume where the previous one stopped.
func (s *Store) SaveCheckpoint(ctx context.Context, sessionID uuid.UUID, state json.RawMessage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO conversation_checkpoints (session_id, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		sessionID, []byte(state),
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// Checkpoint loads the serialized conversation state for a session.
// Returns nil without error when no checkpoint exists.
func (s *Store) Checkpoint(ctx context.Context, sessionID uuid.UUID) (json.RawMessage, error) {
	var state []byte
	err := s.db.QueryRow(ctx,
		`SELECT state FROM conversation_checkpoints WHERE session_id = $1`,
		sessionID,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	return state, nil
}
