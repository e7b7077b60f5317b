package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/log"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/testutil"
)

// newTestStore starts a disposable database and returns a store with one
// user to own the fixtures.
func newTestStore(t *testing.T) (*store.Store, *store.User) {
	t.Helper()

	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	s := store.New(tdb.Pool, log.NewNop())
	user, err := s.CreateUser(context.Background(), uuid.NewString()+"@test.local", "tester")
	require.NoError(t, err)
	return s, user
}

func TestEnsureSession(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	t.Run("zero id creates fresh session", func(t *testing.T) {
		sess, err := s.EnsureSession(ctx, uuid.Nil, user.ID, "새 대화")
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, sess.ID)
		assert.Equal(t, "새 대화", sess.Title)
	})

	t.Run("unknown id is created lazily with that id", func(t *testing.T) {
		clientID := uuid.New()
		sess, err := s.EnsureSession(ctx, clientID, user.ID, "클라이언트 세션")
		require.NoError(t, err)
		assert.Equal(t, clientID, sess.ID)
	})

	t.Run("existing id is returned unchanged", func(t *testing.T) {
		first, err := s.EnsureSession(ctx, uuid.Nil, user.ID, "원래 제목")
		require.NoError(t, err)

		again, err := s.EnsureSession(ctx, first.ID, user.ID, "ignored title")
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "원래 제목", again.Title)
	})
}

func TestSaveMessage_Idempotent(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, user.ID, "")
	require.NoError(t, err)

	msg := &store.Message{
		SessionID:      sess.ID,
		Role:           store.RoleUser,
		Content:        "같은 메시지",
		IdempotencyKey: "client-msg-1",
	}
	inserted, err := s.SaveMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same external id again: no second row, no error.
	dup := &store.Message{
		SessionID:      sess.ID,
		Role:           store.RoleUser,
		Content:        "같은 메시지",
		IdempotencyKey: "client-msg-1",
	}
	inserted, err = s.SaveMessage(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	msgs, err := s.Messages(ctx, sess.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "같은 메시지", msgs[0].Content)
}

func TestSaveMessage_InvalidRole(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, user.ID, "")
	require.NoError(t, err)

	_, err = s.SaveMessage(ctx, &store.Message{
		SessionID: sess.ID,
		Role:      "robot",
		Content:   "x",
	})
	assert.ErrorIs(t, err, store.ErrInvalidRole)
}

func TestMessages_InsertionOrder(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, user.ID, "")
	require.NoError(t, err)

	for _, m := range []struct{ role, content string }{
		{store.RoleUser, "질문"},
		{store.RoleTool, "검색 결과"},
		{store.RoleAssistant, "답변"},
	} {
		_, err := s.SaveMessage(ctx, &store.Message{
			SessionID: sess.ID,
			Role:      m.role,
			Content:   m.content,
		})
		require.NoError(t, err)
	}

	msgs, err := s.Messages(ctx, sess.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "질문", msgs[0].Content)
	assert.Equal(t, "검색 결과", msgs[1].Content)
	assert.Equal(t, "답변", msgs[2].Content)
}

func TestDeleteSession_SoftDelete(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, user.ID, "지울 세션")
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, &store.Message{
		SessionID: sess.ID, Role: store.RoleUser, Content: "흔적",
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	// Hidden from lookups and listings.
	_, err = s.Session(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	listed, err := s.ListSessions(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Messages survive the soft delete for audit.
	msgs, err := s.Messages(ctx, sess.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	assert.ErrorIs(t, s.DeleteSession(ctx, uuid.New()), store.ErrSessionNotFound)
}

func TestToolCallLifecycle(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, user.ID, "")
	require.NoError(t, err)

	msg := &store.Message{SessionID: sess.ID, Role: store.RoleTool, Content: "검색 중"}
	_, err = s.SaveMessage(ctx, msg)
	require.NoError(t, err)

	require.NoError(t, s.CreateToolCall(ctx, &store.ToolCallRecord{
		MessageID:  msg.ID,
		ToolCallID: "call-1",
		Status:     store.ToolStatusStarted,
	}))

	require.NoError(t, s.FinalizeToolCall(ctx, msg.ID, store.ToolStatusSuccess,
		map[string]any{"hits": float64(3)}, "three passages"))

	rec, err := s.ToolCall(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ToolStatusSuccess, rec.Status)
	assert.Equal(t, float64(3), rec.Artifact["hits"])
	assert.Equal(t, "three passages", rec.RawContent)

	// Finalizing a record that was never started is an error.
	assert.Error(t, s.FinalizeToolCall(ctx, uuid.New(), store.ToolStatusError, nil, ""))
}

func TestCheckpointRoundTrip(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, user.ID, "")
	require.NoError(t, err)

	// No checkpoint yet: nil, no error.
	state, err := s.Checkpoint(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, state)

	first := json.RawMessage(`{"history":["turn one"]}`)
	require.NoError(t, s.SaveCheckpoint(ctx, sess.ID, first))

	loaded, err := s.Checkpoint(ctx, sess.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(loaded))

	// Saving again replaces, never appends.
	second := json.RawMessage(`{"history":["turn one","turn two"]}`)
	require.NoError(t, s.SaveCheckpoint(ctx, sess.ID, second))

	loaded, err = s.Checkpoint(ctx, sess.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(second), string(loaded))
}

func TestDocumentLifecycle(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, &store.Document{
		OwnerID:      user.ID,
		OriginalPath: "documents/u/report.pdf",
		MarkdownPath: "documents/u/content.md",
		Content:      "# 보고서",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ContentHash)
	assert.Nil(t, doc.IndexedAt)

	require.NoError(t, s.MarkDocumentIndexed(ctx, doc.ID, user.ID.String()))
	indexed, err := s.Document(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, indexed.IndexedAt)
	assert.Equal(t, user.ID.String(), indexed.Namespace)

	// A content update invalidates the index stamp.
	require.NoError(t, s.UpdateDocumentContent(ctx, doc.ID, "# 개정 보고서"))
	updated, err := s.Document(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "# 개정 보고서", updated.Content)
	assert.NotEqual(t, doc.ContentHash, updated.ContentHash)
	assert.Nil(t, updated.IndexedAt)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	_, err = s.Document(ctx, doc.ID)
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestDefaultCalendarAndEvents(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	cal, err := s.DefaultCalendar(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cal.IsDefault)

	// Lazy creation is stable: the same calendar comes back.
	again, err := s.DefaultCalendar(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, cal.ID, again.ID)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	end := start.Add(-time.Hour)
	_, err = s.CreateEvent(ctx, &store.Event{
		CalendarID: cal.ID,
		Title:      "뒤집힌 일정",
		StartAt:    start,
		EndAt:      &end,
	})
	assert.ErrorIs(t, err, store.ErrEventEndBeforeStart)

	goodEnd := start.Add(time.Hour)
	ev, err := s.CreateEvent(ctx, &store.Event{
		CalendarID: cal.ID,
		Title:      "주간 회의",
		StartAt:    start,
		EndAt:      &goodEnd,
	})
	require.NoError(t, err)

	events, err := s.ListEvents(ctx, cal.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "주간 회의", events[0].Title)

	require.NoError(t, s.DeleteEvent(ctx, cal.ID, ev.ID))
	_, err = s.Event(ctx, cal.ID, ev.ID)
	assert.ErrorIs(t, err, store.ErrEventNotFound)
}
