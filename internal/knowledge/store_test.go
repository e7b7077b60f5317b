package knowledge_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/knowledge"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/log"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/testutil"
)

type knowledgeHarness struct {
	kn    *knowledge.Store
	st    *store.Store
	owner *store.User
}

func newKnowledgeHarness(t *testing.T) *knowledgeHarness {
	t.Helper()

	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	g := testutil.NewGenkit(t)
	embedder := testutil.NewMockEmbedder(knowledge.VectorDimension).RegisterEmbedder(g)

	st := store.New(tdb.Pool, log.NewNop())
	owner, err := st.CreateUser(context.Background(), uuid.NewString()+"@test.local", "tester")
	require.NoError(t, err)

	return &knowledgeHarness{
		kn:    knowledge.New(tdb.Pool, embedder, log.NewNop()),
		st:    st,
		owner: owner,
	}
}

// newDocument inserts a document row so chunk rows satisfy the foreign key.
func (h *knowledgeHarness) newDocument(t *testing.T) uuid.UUID {
	t.Helper()
	doc, err := h.st.CreateDocument(context.Background(), &store.Document{
		OwnerID:      h.owner.ID,
		OriginalPath: "documents/test/original.pdf",
	})
	require.NoError(t, err)
	return doc.ID
}

func TestIndexAndSearch(t *testing.T) {
	h := newKnowledgeHarness(t)
	ctx := context.Background()

	docID := h.newDocument(t)
	content := "3분기 매출은 전년 대비 12% 증가했다.\n\n" +
		"신규 고객 유치 비용은 소폭 감소했다."

	n, err := h.kn.IndexDocument(ctx, docID, content, h.owner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := h.kn.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The deterministic embedder maps identical text to identical vectors,
	// so querying with indexed text must surface its chunk first.
	results, err := h.kn.Search(ctx, "3분기 매출은 전년 대비 12% 증가했다.",
		knowledge.WithTopK(5))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, docID, results[0].Chunk.DocumentID)
	assert.Contains(t, results[0].Chunk.Content, "12% 증가")
	assert.InDelta(t, 1.0, results[0].Similarity, 0.05)
}

func TestIndexDocument_EmptyContent(t *testing.T) {
	h := newKnowledgeHarness(t)

	n, err := h.kn.IndexDocument(context.Background(), h.newDocument(t), "   ", "ns")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReindexReplacesStaleChunks(t *testing.T) {
	h := newKnowledgeHarness(t)
	ctx := context.Background()

	docID := h.newDocument(t)
	long := "첫 번째 버전의 본문.\n\n" + "두 번째 단락.\n\n" + "세 번째 단락."
	_, err := h.kn.IndexDocument(ctx, docID, long, "ns")
	require.NoError(t, err)

	// Re-index with shorter content: old chunk rows must not linger.
	_, err = h.kn.IndexDocument(ctx, docID, "개정된 본문 하나만 남는다.", "ns")
	require.NoError(t, err)

	count, err := h.kn.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := h.kn.Search(ctx, "개정된 본문 하나만 남는다.")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Content, "개정된 본문")
}

func TestSearch_NamespaceFilter(t *testing.T) {
	h := newKnowledgeHarness(t)
	ctx := context.Background()

	mine := h.newDocument(t)
	theirs := h.newDocument(t)
	_, err := h.kn.IndexDocument(ctx, mine, "내 문서의 내용이다.", "user-a")
	require.NoError(t, err)
	_, err = h.kn.IndexDocument(ctx, theirs, "남의 문서의 내용이다.", "user-b")
	require.NoError(t, err)

	results, err := h.kn.Search(ctx, "문서의 내용",
		knowledge.WithNamespace("user-a"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, mine, results[0].Chunk.DocumentID)

	// No namespace filter sees everything.
	all, err := h.kn.Search(ctx, "문서의 내용")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearch_DocumentFilter(t *testing.T) {
	h := newKnowledgeHarness(t)
	ctx := context.Background()

	first := h.newDocument(t)
	second := h.newDocument(t)
	_, err := h.kn.IndexDocument(ctx, first, "첫 문서 본문.", "ns")
	require.NoError(t, err)
	_, err = h.kn.IndexDocument(ctx, second, "둘째 문서 본문.", "ns")
	require.NoError(t, err)

	results, err := h.kn.Search(ctx, "본문",
		knowledge.WithDocument(second.String()))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, second, results[0].Chunk.DocumentID)
}

func TestDeleteDocumentChunks(t *testing.T) {
	h := newKnowledgeHarness(t)
	ctx := context.Background()

	docID := h.newDocument(t)
	_, err := h.kn.IndexDocument(ctx, docID, "지워질 내용.", "ns")
	require.NoError(t, err)

	require.NoError(t, h.kn.DeleteDocument(ctx, docID))

	count, err := h.kn.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
