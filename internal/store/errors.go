package store

import "errors"

// Sentinel errors, checked with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEventNotFound indicates the requested calendar event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidRole indicates a message role outside the closed role set.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrEventEndBeforeStart indicates an event whose end precedes its start.
	ErrEventEndBeforeStart = errors.New("event end before start")
)

// Pagination bounds for listing operations.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// NormalizeLimit clamps a page size into [1, MaxPageSize], applying the
// default for zero or negative values.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func validRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}
