package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateDocument inserts a document row for an uploaded file. Content is the
// derived markdown representation; the original stays in object storage.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) (*Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.ContentHash = hashContent(doc.Content)

	var out Document
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, owner_id, original_path, markdown_path, content, content_hash, namespace)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, owner_id, original_path, markdown_path, content, content_hash,
		           namespace, indexed_at, created_at, updated_at`,
		doc.ID, doc.OwnerID, doc.OriginalPath, doc.MarkdownPath, doc.Content,
		doc.ContentHash, doc.Namespace,
	).Scan(&out.ID, &out.OwnerID, &out.OriginalPath, &out.MarkdownPath, &out.Content,
		&out.ContentHash, &out.Namespace, &out.IndexedAt, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	s.logger.Debug("created document", "id", out.ID, "owner", out.OwnerID)
	return &out, nil
}

// Document retrieves a document by ID.
func (s *Store) Document(ctx context.Context, docID uuid.UUID) (*Document, error) {
	var out Document
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, original_path, markdown_path, content, content_hash,
		        namespace, indexed_at, created_at, updated_at
		 FROM documents WHERE id = $1`,
		docID,
	).Scan(&out.ID, &out.OwnerID, &out.OriginalPath, &out.MarkdownPath, &out.Content,
		&out.ContentHash, &out.Namespace, &out.IndexedAt, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", docID, err)
	}
	return &out, nil
}

// ListDocuments lists a user's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Document, error) {
	limit = NormalizeLimit(limit)

	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, original_path, markdown_path, content, content_hash,
		        namespace, indexed_at, created_at, updated_at
		 FROM documents WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.OriginalPath, &d.MarkdownPath, &d.Content,
			&d.ContentHash, &d.Namespace, &d.IndexedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// UpdateDocumentContent replaces a document's markdown content and resets its
// index timestamp so the vector index re-embeds it.
func (s *Store) UpdateDocumentContent(ctx context.Context, docID uuid.UUID, content string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents
		 SET content = $2, content_hash = $3, indexed_at = NULL, updated_at = now()
		 WHERE id = $1`,
		docID, content, hashContent(content),
	)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MarkDocumentIndexed stamps a document as vector-indexed under a namespace.
func (s *Store) MarkDocumentIndexed(ctx context.Context, docID uuid.UUID, namespace string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET indexed_at = now(), namespace = $2 WHERE id = $1`,
		docID, namespace,
	)
	if err != nil {
		return fmt.Errorf("marking document indexed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteDocument removes the document row. Chunk rows cascade; backing
// objects in storage are the caller's responsibility (api layer deletes them
// before removing the row).
func (s *Store) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
