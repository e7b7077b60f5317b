package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/knowledge"
	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/store"
)

// ObjectStore is the object storage surface the document API needs.
// Satisfied by objstore.Client.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
}

const (
	maxUploadBytes = 16 << 20 // 16 MiB
	presignTTL     = 15 * time.Minute
)

// documentHandler serves document upload, content, export, and deletion.
//
// A document has two representations: the original uploaded bytes in object
// storage, and the extracted markdown in the documents table. Search indexes
// the markdown; export renders it to HTML.
type documentHandler struct {
	store     *store.Store
	knowledge *knowledge.Store
	objects   ObjectStore
	markdown  goldmark.Markdown
	logger    *slog.Logger
}

func newDocumentHandler(st *store.Store, kn *knowledge.Store, obj ObjectStore, logger *slog.Logger) *documentHandler {
	return &documentHandler{
		store:     st,
		knowledge: kn,
		objects:   obj,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:    logger,
	}
}

type documentView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Namespace string     `json:"namespace"`
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toDocumentView(d *store.Document) documentView {
	return documentView{
		ID:        d.ID.String(),
		Name:      path.Base(d.OriginalPath),
		Namespace: d.Namespace,
		IndexedAt: d.IndexedAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// upload accepts a multipart file, stores the original bytes, persists the
// markdown content, and indexes it for retrieval.
func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_upload", "invalid multipart upload", h.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing_file", "file field is required", h.logger)
		return
	}
	defer file.Close()

	if err := validateFilename(header.Filename); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_filename", err.Error(), h.logger)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "read_error", "failed to read upload", h.logger)
		return
	}

	docID := uuid.New()
	originalKey := fmt.Sprintf("documents/%s/%s/original/%s", userID, docID, header.Filename)
	markdownKey := fmt.Sprintf("documents/%s/%s/content.md", userID, docID)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.objects.Put(r.Context(), originalKey, contentType, bytes.NewReader(content)); err != nil {
		WriteError(w, http.StatusBadGateway, "storage_error", "failed to store file", h.logger)
		return
	}
	if err := h.objects.Put(r.Context(), markdownKey, "text/markdown", bytes.NewReader(content)); err != nil {
		WriteError(w, http.StatusBadGateway, "storage_error", "failed to store file", h.logger)
		return
	}

	// The owner is the vector namespace, so search never crosses users.
	doc, err := h.store.CreateDocument(r.Context(), &store.Document{
		ID:           docID,
		OwnerID:      userID,
		OriginalPath: originalKey,
		MarkdownPath: markdownKey,
		Content:      string(content),
		Namespace:    userID.String(),
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "create_error", "failed to create document", h.logger)
		return
	}

	h.index(r, doc)

	WriteJSON(w, http.StatusCreated, toDocumentView(doc))
}

// index chunks and embeds the document. Indexing failure leaves the document
// usable for editing; indexed_at stays NULL so it can be retried.
func (h *documentHandler) index(r *http.Request, doc *store.Document) {
	chunks, err := h.knowledge.IndexDocument(r.Context(), doc.ID, doc.Content, doc.Namespace)
	if err != nil {
		h.logger.Warn("failed to index document",
			"document_id", doc.ID,
			"error", err)
		return
	}
	if err := h.store.MarkDocumentIndexed(r.Context(), doc.ID, doc.Namespace); err != nil {
		h.logger.Warn("failed to mark document indexed",
			"document_id", doc.ID,
			"error", err)
		return
	}
	h.logger.Info("indexed document", "document_id", doc.ID, "chunks", chunks)
}

func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return
	}

	limit, offset := pagination(r)
	docs, err := h.store.ListDocuments(r.Context(), userID, limit, offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_error", "failed to list documents", h.logger)
		return
	}

	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, toDocumentView(d))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"documents": views})
}

func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	view := toDocumentView(doc)
	WriteJSON(w, http.StatusOK, map[string]any{
		"document": view,
		"content":  doc.Content,
	})
}

type updateContentRequest struct {
	Content string `json:"content"`
}

// updateContent replaces the document's markdown and re-indexes it.
func (h *documentHandler) updateContent(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	var req updateContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	if err := h.store.UpdateDocumentContent(r.Context(), doc.ID, req.Content); err != nil {
		WriteError(w, http.StatusInternalServerError, "update_error", "failed to update document", h.logger)
		return
	}

	if err := h.objects.Put(r.Context(), doc.MarkdownPath, "text/markdown",
		strings.NewReader(req.Content)); err != nil {
		h.logger.Warn("failed to sync markdown object",
			"document_id", doc.ID,
			"error", err)
	}

	doc.Content = req.Content
	h.index(r, doc)

	w.WriteHeader(http.StatusNoContent)
}

// export renders the document's markdown to standalone HTML.
func (h *documentHandler) export(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(doc.Content), &buf); err != nil {
		WriteError(w, http.StatusInternalServerError, "export_error", "failed to render document", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(doc.MarkdownPath)+".html"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("failed to write export", "error", err)
	}
}

// delete removes the document row, its vector chunks, and its objects.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if err := h.knowledge.DeleteDocument(r.Context(), doc.ID); err != nil {
		h.logger.Warn("failed to delete document chunks",
			"document_id", doc.ID,
			"error", err)
	}
	for _, key := range []string{doc.OriginalPath, doc.MarkdownPath} {
		if err := h.objects.Delete(r.Context(), key); err != nil {
			h.logger.Warn("failed to delete object", "key", key, "error", err)
		}
	}
	if err := h.store.DeleteDocument(r.Context(), doc.ID); err != nil {
		WriteError(w, http.StatusInternalServerError, "delete_error", "failed to delete document", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type presignRequest struct {
	Filename string `json:"filename"`
}

type presignResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

// presignUpload issues a direct-to-storage upload URL so large files bypass
// the API server.
func (h *documentHandler) presignUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return
	}

	var req presignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if err := validateFilename(req.Filename); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_filename", err.Error(), h.logger)
		return
	}

	key := fmt.Sprintf("uploads/%s/%s", userID, req.Filename)
	url, err := h.objects.PresignPut(r.Context(), key, presignTTL)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "presign_error", "failed to presign upload", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, presignResponse{
		URL:       url,
		Key:       key,
		ExpiresIn: int(presignTTL.Seconds()),
	})
}

func (h *documentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*store.Document, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", h.logger)
		return nil, false
	}

	docID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid document id", h.logger)
		return nil, false
	}

	doc, err := h.store.Document(r.Context(), docID)
	if errors.Is(err, store.ErrDocumentNotFound) || (err == nil && doc.OwnerID != userID) {
		WriteError(w, http.StatusNotFound, "document_not_found", "document not found", h.logger)
		return nil, false
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "document_error", "failed to load document", h.logger)
		return nil, false
	}
	return doc, true
}

// validateFilename rejects names that could escape the owner's key prefix.
func validateFilename(name string) error {
	if name == "" {
		return errors.New("filename is required")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		return errors.New("filename must not contain path separators")
	}
	return nil
}
