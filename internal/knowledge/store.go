// Package knowledge manages the vector index over uploaded documents.
// It handles embedding generation and similarity search using
// PostgreSQL + pgvector.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the store depends on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages document chunks with vector search capabilities.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a new Store instance. A nil logger falls back to slog.Default.
func New(db DB, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// IndexDocument splits a document's markdown content into chunks, embeds
// them, and upserts the chunk rows. Existing chunks for the document are
// replaced so re-indexing after an edit never leaves stale content behind.
func (s *Store) IndexDocument(ctx context.Context, documentID uuid.UUID, content, namespace string) (int, error) {
	chunks := Split(content)
	if len(chunks) == 0 {
		return 0, nil
	}

	input := make([]*ai.Document, len(chunks))
	for i, c := range chunks {
		input[i] = ai.DocumentFromText(c, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return 0, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(chunks))
	}

	if _, err := s.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return 0, fmt.Errorf("clearing stale chunks: %w", err)
	}

	for i, c := range chunks {
		embedding := pgvector.NewVector(resp.Embeddings[i].Embedding)
		metadata, err := json.Marshal(map[string]string{"namespace": namespace})
		if err != nil {
			return 0, fmt.Errorf("marshaling chunk metadata: %w", err)
		}

		chunkID := fmt.Sprintf("%s:%d", documentID, i)
		if _, err := s.db.Exec(ctx,
			`INSERT INTO document_chunks (id, document_id, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE
			 SET content = EXCLUDED.content, embedding = EXCLUDED.embedding,
			     metadata = EXCLUDED.metadata`,
			chunkID, documentID, c, embedding, metadata,
		); err != nil {
			return 0, fmt.Errorf("upserting chunk %q: %w", chunkID, err)
		}
	}

	s.logger.Debug("indexed document", "id", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// Search performs semantic search over document chunks. Results are ordered
// by cosine similarity, best first. A per-query timeout prevents long vector
// scans from blocking the request.
//
//	results, err := store.Search(ctx, "회의록",
//	    knowledge.WithTopK(5), knowledge.WithNamespace("user-123"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	resp, err := s.embedder.Embed(queryCtx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("generating query embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned for query")
	}

	queryEmbedding := pgvector.NewVector(resp.Embeddings[0].Embedding)

	// Filters are parameterized; metadata filters go through json.Marshal,
	// never raw user input.
	sql := `SELECT id, document_id, content, metadata, created_at,
	               1 - (embedding <=> $1) AS similarity
	        FROM document_chunks`
	args := []any{queryEmbedding}

	switch {
	case cfg.documentID != "":
		sql += ` WHERE document_id = $2`
		args = append(args, cfg.documentID)
	case cfg.namespace != "":
		filter, err := json.Marshal(map[string]string{"namespace": cfg.namespace})
		if err != nil {
			return nil, fmt.Errorf("marshaling namespace filter: %w", err)
		}
		sql += ` WHERE metadata @> $2`
		args = append(args, filter)
	}

	sql += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, cfg.topK)

	rows, err := s.db.Query(queryCtx, sql, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var metadata []byte
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Content,
			&metadata, &r.Chunk.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := json.Unmarshal(metadata, &r.Chunk.Metadata); err != nil {
			s.logger.Warn("parsing chunk metadata", "chunk_id", r.Chunk.ID, "error", err)
			r.Chunk.Metadata = map[string]string{}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// DeleteDocument removes all chunks for a document from the index.
func (s *Store) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting chunks for document %s: %w", documentID, err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM document_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
