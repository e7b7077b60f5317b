// Package store provides PostgreSQL persistence for chat sessions, messages,
// tool-call records, documents, calendars, and conversation checkpoints.
//
// Responsibilities: durable storage only. Agent semantics (routing, tool
// loops) live in internal/agent; this package never calls the model.
// Store is safe for concurrent use by multiple goroutines.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Tool-call record statuses.
const (
	ToolStatusStarted = "started"
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// User is an account that owns sessions, documents, and calendars.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	CreatedAt time.Time
}

// Session represents a conversation session.
type Session struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Title     string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single append-only conversation message.
// IdempotencyKey, when non-empty, is globally unique and enforces
// at-most-once insertion per external message id.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string
	Content        string
	IdempotencyKey string
	CreatedAt      time.Time
}

// ToolCallRecord is the one-to-one record of a tool invocation attached to a
// tool message. Created with status "started", finalized to "success" or
// "error" when the tool completes.
type ToolCallRecord struct {
	MessageID  uuid.UUID
	ToolCallID string
	Status     string
	Artifact   map[string]any
	RawContent string
}

// Document is an uploaded file with its derived markdown representation.
// The markdown is always regenerable from the original file.
type Document struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	OriginalPath string
	MarkdownPath string
	Content      string
	ContentHash  string
	Namespace    string
	IndexedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Calendar groups events for one user. Every user has exactly one default
// calendar, created lazily.
type Calendar struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	IsDefault bool
	CreatedAt time.Time
}

// Event is a scheduled calendar entry. EndAt, when present, is never before
// StartAt (enforced by a database CHECK as well as UpsertEvent validation).
type Event struct {
	ID          uuid.UUID
	CalendarID  uuid.UUID
	Title       string
	Description string
	StartAt     time.Time
	EndAt       *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
