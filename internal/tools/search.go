package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/knowledge"
)

// SearchToolName is the dispatch key of the document search tool.
const SearchToolName = "search_documents"

// Searcher is the slice of knowledge.Store the search tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// SearchTool retrieves document chunks relevant to a query from the vector
// index. The namespace scopes results to the requesting user's documents.
type SearchTool struct {
	searcher  Searcher
	namespace string
}

// NewSearchTool creates the document search tool bound to a namespace.
func NewSearchTool(searcher Searcher, namespace string) *SearchTool {
	return &SearchTool{searcher: searcher, namespace: namespace}
}

func (*SearchTool) Name() string { return SearchToolName }

func (*SearchTool) Description() string {
	return "Search the user's uploaded documents for passages relevant to a query. " +
		"Input: {\"query\": string, \"top_k\": optional int}."
}

type searchInput struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`

	// Namespace is injected by the caller, never chosen by the model. It
	// overrides the tool's default namespace when set.
	Namespace string `json:"namespace"`
}

// Execute runs the vector search and renders hits as numbered passages.
func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in searchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("parsing search input: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	ns := t.namespace
	if in.Namespace != "" {
		ns = in.Namespace
	}
	opts := []knowledge.SearchOption{knowledge.WithNamespace(ns)}
	if in.TopK > 0 {
		opts = append(opts, knowledge.WithTopK(in.TopK))
	}

	results, err := t.searcher.Search(ctx, in.Query, opts...)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	if len(results) == 0 {
		return &Result{
			Status:   StatusSuccess,
			Artifact: map[string]any{"query": in.Query, "hits": 0},
			Content:  "No matching passages found.",
		}, nil
	}

	var b strings.Builder
	hits := make([]map[string]any, 0, len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (doc %s, score %.3f)\n%s\n\n",
			i+1, r.Chunk.DocumentID, r.Similarity, r.Chunk.Content)
		hits = append(hits, map[string]any{
			"chunk_id":    r.Chunk.ID,
			"document_id": r.Chunk.DocumentID.String(),
			"similarity":  r.Similarity,
		})
	}

	return &Result{
		Status:   StatusSuccess,
		Artifact: map[string]any{"query": in.Query, "hits": len(results), "results": hits},
		Content:  strings.TrimSpace(b.String()),
	}, nil
}
