package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/agent"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/knowledge"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/log"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/router"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/testutil"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/tools"
)

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Put(_ context.Context, key, _ string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key + "?signed", nil
}

func (m *memObjects) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// apiHarness is a fully wired server over a disposable database and a mock
// model, exercised through plain HTTP requests.
type apiHarness struct {
	t       *testing.T
	handler http.Handler
	objects *memObjects
	token   string
}

func newAPIHarness(t *testing.T, mock *testutil.MockLLM) *apiHarness {
	t.Helper()

	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	g := testutil.NewGenkit(t)
	mock.RegisterModel(g)
	embedder := testutil.NewMockEmbedder(knowledge.VectorDimension).RegisterEmbedder(g)

	logger := log.NewNop()
	st := store.New(tdb.Pool, logger)
	kn := knowledge.New(tdb.Pool, embedder, logger)

	objects := newMemObjects()

	reg := tools.NewRegistry(logger)
	require.NoError(t, reg.Register(tools.NewSearchTool(kn, "")))
	require.NoError(t, reg.Register(tools.NewEditTool()))
	require.NoError(t, reg.Register(tools.NewUploadURLTool(objects)))
	chatRefs, err := agent.DefineChatToolRefs(g, reg)
	require.NoError(t, err)
	searchRefs, err := agent.DefineSearchToolRefs(g, reg)
	require.NoError(t, err)
	editRefs, err := agent.DefineEditToolRefs(g, reg)
	require.NoError(t, err)

	rt := router.New(g, testutil.MockModelName, logger)
	orch := agent.NewOrchestrator(rt, st, 100, logger,
		agent.NewChatAgent(g, testutil.MockModelName, reg, chatRefs, 5, logger),
		agent.NewSearchAgent(g, testutil.MockModelName, reg, searchRefs, 5, logger),
		agent.NewEditAgent(g, testutil.MockModelName, reg, editRefs, 5, logger),
	)

	srv, err := NewServer(ServerConfig{
		Logger:       logger,
		Store:        st,
		Knowledge:    kn,
		Orchestrator: orch,
		Objects:      objects,
		Pool:         tdb.Pool,
		JWTSecret:    testSecret,
		IsDev:        true,
		RateBurst:    1000,
	})
	require.NoError(t, err)

	h := &apiHarness{t: t, handler: srv.Handler(), objects: objects}
	h.token = h.login("tester@test.local")
	return h
}

func (h *apiHarness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, path, rd)
	r.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		r.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	return w
}

func (h *apiHarness) login(email string) string {
	h.t.Helper()

	prev := h.token
	h.token = ""
	w := h.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email})
	h.token = prev
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(h.t, resp.Token)
	return resp.Token
}

// uploadDocument uploads a file through the multipart endpoint and returns
// the new document's ID.
func (h *apiHarness) uploadDocument(filename, content string) string {
	h.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(h.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(h.t, err)
	require.NoError(h.t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Authorization", "Bearer "+h.token)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &created))
	return created.ID
}

// sseData parses an SSE body into its decoded data payloads.
func sseData(t *testing.T, body string) []map[string]any {
	t.Helper()

	var payloads []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		raw, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &payload), "bad SSE line: %s", line)
		payloads = append(payloads, payload)
	}
	require.NoError(t, sc.Err())
	return payloads
}

func TestAPI_RequiresAuth(t *testing.T) {
	h := newAPIHarness(t, testutil.NewMockLLM(""))

	h.token = ""
	w := h.do(http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Health probes stay open.
	w = h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_SessionCRUD(t *testing.T) {
	h := newAPIHarness(t, testutil.NewMockLLM(""))

	w := h.do(http.MethodPost, "/api/v1/sessions", map[string]string{"title": "업무 대화"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "업무 대화", created.Title)

	w = h.do(http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 1)

	// Another user cannot see it.
	otherToken := h.login("other@test.local")
	mine := h.token
	h.token = otherToken
	w = h.do(http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	h.token = mine

	w = h.do(http.MethodDelete, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ChatSaveIdempotent(t *testing.T) {
	h := newAPIHarness(t, testutil.NewMockLLM(""))

	sessionID := uuid.NewString()
	req := map[string]any{
		"session_id":      sessionID,
		"role":            "user",
		"content":         "안녕하세요",
		"idempotency_key": "msg-1",
	}

	w := h.do(http.MethodPost, "/api/v1/chat/save", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var first struct {
		MessageID string `json:"message_id"`
		Created   bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.True(t, first.Created)

	// The retry is acknowledged without a second row.
	w = h.do(http.MethodPost, "/api/v1/chat/save", req)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s/messages", sessionID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	assert.Len(t, msgs.Messages, 1)
}

func TestAPI_ChatStream_GeneralChat(t *testing.T) {
	mock := testutil.NewMockLLM("반가워요!")
	mock.AddIntent("안녕", "general_chat")
	h := newAPIHarness(t, mock)

	sessionID := uuid.NewString()
	w := h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"session_id": sessionID,
		"prompt":     "안녕하세요",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	payloads := sseData(t, w.Body.String())
	require.NotEmpty(t, payloads)

	var sawContent bool
	for _, p := range payloads {
		if c, ok := p["content"].(string); ok && strings.Contains(c, "반가워요") {
			sawContent = true
		}
	}
	assert.True(t, sawContent, "expected a content chunk, got %v", payloads)

	last := payloads[len(payloads)-1]
	assert.Equal(t, true, last["done"])

	// Both sides of the turn are on record.
	w = h.do(http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s/messages", sessionID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "user", msgs.Messages[0].Role)
	assert.Equal(t, "assistant", msgs.Messages[1].Role)
	assert.Equal(t, "반가워요!", msgs.Messages[1].Content)
}

func TestAPI_ChatStream_NeedsDocument(t *testing.T) {
	mock := testutil.NewMockLLM("")
	mock.AddIntent("회의록", "document_search")
	h := newAPIHarness(t, mock)

	w := h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"session_id": uuid.NewString(),
		"prompt":     "회의록을 찾아줘",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payloads := sseData(t, w.Body.String())
	require.NotEmpty(t, payloads)

	var needs map[string]any
	for _, p := range payloads {
		if _, ok := p["needs_document_content"]; ok {
			needs = p
		}
	}
	require.NotNil(t, needs, "expected needs_document_content, got %v", payloads)
	assert.Equal(t, true, needs["needs_document_content"])
	assert.Equal(t, "document_search", needs["agent_context"])
	assert.Equal(t, true, payloads[len(payloads)-1]["done"])
}

func TestAPI_ChatStream_EditTurn(t *testing.T) {
	mock := testutil.NewMockLLM("")
	mock.AddIntent("바꿔", "document_edit")
	mock.AddToolResponse("바꿔",
		[]*ai.ToolRequest{{
			Name:  tools.EditToolName,
			Input: map[string]any{"mode": "substitute", "find": "초안", "replace_with": "최종본"},
		}},
		"제목을 바꿨어요.")
	h := newAPIHarness(t, mock)

	w := h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"session_id":       uuid.NewString(),
		"prompt":           "제목을 바꿔줘",
		"document_content": "# 초안",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payloads := sseData(t, w.Body.String())
	require.NotEmpty(t, payloads)

	var sawTool, sawUpdate bool
	for _, p := range payloads {
		if _, ok := p["tool_message"]; ok {
			sawTool = true
		}
		if doc, ok := p["document_update"].(string); ok {
			sawUpdate = true
			assert.Equal(t, "# 최종본", doc)
		}
	}
	assert.True(t, sawTool, "expected tool_message payloads, got %v", payloads)
	assert.True(t, sawUpdate, "expected a document_update payload, got %v", payloads)
	assert.Equal(t, true, payloads[len(payloads)-1]["done"])
}

func TestAPI_ChatStream_MissingFields(t *testing.T) {
	h := newAPIHarness(t, testutil.NewMockLLM(""))

	w := h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"prompt": "세션이 없다",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"session_id": uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ChatCrossUserIsolation(t *testing.T) {
	mock := testutil.NewMockLLM("반가워요!")
	mock.AddIntent("안녕", "general_chat")
	h := newAPIHarness(t, mock)

	// User A owns a session and a document.
	sessionID := uuid.NewString()
	w := h.do(http.MethodPost, "/api/v1/chat/save", map[string]any{
		"session_id": sessionID,
		"role":       "user",
		"content":    "내 대화",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docID := h.uploadDocument("mine.md", "# 비공개 문서")

	h.token = h.login("intruder@test.local")

	// Another user cannot write into the session.
	w = h.do(http.MethodPost, "/api/v1/chat/save", map[string]any{
		"session_id": sessionID,
		"role":       "user",
		"content":    "끼어들기",
	})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	// Nor stream a turn on it.
	w = h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"session_id": sessionID,
		"prompt":     "안녕하세요",
	})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	// Nor attach someone else's document to their own session.
	w = h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"session_id":  uuid.NewString(),
		"prompt":      "안녕하세요",
		"document_id": docID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestAPI_ChatStream_SearchScopedToOwner(t *testing.T) {
	mock := testutil.NewMockLLM("")
	mock.AddIntent("마감일", "document_search")
	mock.AddToolResponse("마감일",
		[]*ai.ToolRequest{{
			Name:  tools.SearchToolName,
			Input: map[string]any{"query": "프로젝트 마감일"},
		}},
		"마감일을 찾았어요.")
	h := newAPIHarness(t, mock)

	// Two users, two documents with conflicting answers.
	h.uploadDocument("deadline.md", "프로젝트 마감일은 9월 30일입니다.")

	h.token = h.login("second@test.local")
	docID := h.uploadDocument("deadline.md", "프로젝트 마감일은 12월 25일입니다.")

	w := h.do(http.MethodPost, "/api/v1/chat/stream", map[string]any{
		"session_id":  uuid.NewString(),
		"prompt":      "프로젝트 마감일이 언제야?",
		"document_id": docID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Retrieval only surfaces the requesting user's document; the other
	// user's deadline never appears, even though its chunk would match.
	var summaries []string
	for _, p := range sseData(t, w.Body.String()) {
		tm, ok := p["tool_message"].(map[string]any)
		if !ok {
			continue
		}
		if s, ok := tm["summary"].(string); ok && s != "" {
			summaries = append(summaries, s)
		}
	}
	require.NotEmpty(t, summaries)
	joined := strings.Join(summaries, "\n")
	assert.Contains(t, joined, "12월 25일")
	assert.NotContains(t, joined, "9월 30일")
}

func TestAPI_DocumentLifecycle(t *testing.T) {
	h := newAPIHarness(t, testutil.NewMockLLM(""))

	const content = "# 회의록\n\n분기 목표를 정리했다."
	id := h.uploadDocument("minutes.md", content)

	// Original bytes and the markdown copy both land in object storage.
	assert.Equal(t, 2, h.objects.len())

	w := h.do(http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Documents []struct {
			Name string `json:"name"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Documents, 1)
	assert.Equal(t, "minutes.md", listed.Documents[0].Name)

	// The uploaded content reads back verbatim.
	w = h.do(http.MethodGet, "/api/v1/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, content, got.Content)

	w = h.do(http.MethodGet, "/api/v1/documents/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<h1")
	assert.Contains(t, w.Body.String(), "회의록")

	w = h.do(http.MethodPut, "/api/v1/documents/"+id+"/content",
		map[string]string{"content": "# 개정판"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/api/v1/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "# 개정판", got.Content)

	w = h.do(http.MethodDelete, "/api/v1/documents/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, h.objects.len())
	w = h.do(http.MethodGet, "/api/v1/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_DocumentPresign(t *testing.T) {
	h := newAPIHarness(t, testutil.NewMockLLM(""))

	w := h.do(http.MethodPost, "/api/v1/documents/presign",
		map[string]string{"filename": "big.pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		URL string `json:"url"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Key, "uploads/"), resp.Key)
	assert.True(t, strings.HasSuffix(resp.Key, "/big.pdf"), resp.Key)
	assert.Contains(t, resp.URL, "?signed")

	w = h.do(http.MethodPost, "/api/v1/documents/presign",
		map[string]string{"filename": "../escape.pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_CalendarEvents(t *testing.T) {
	h := newAPIHarness(t, testutil.NewMockLLM(""))

	w := h.do(http.MethodPost, "/api/v1/calendar/events", map[string]any{
		"title":    "분기 리뷰",
		"start_at": "2026-09-01T10:00:00Z",
		"end_at":   "2026-09-01T11:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// End before start is rejected up front.
	w = h.do(http.MethodPost, "/api/v1/calendar/events", map[string]any{
		"title":    "뒤집힌 일정",
		"start_at": "2026-09-01T11:00:00Z",
		"end_at":   "2026-09-01T10:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/v1/calendar/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Events []struct {
			Title string `json:"title"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Events, 1)
	assert.Equal(t, "분기 리뷰", listed.Events[0].Title)
}
