package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimensionality of the document_chunks
// schema. Gemini embeddings are truncated to this size (Matryoshka
// representation supports truncation without re-training).
const VectorDimension = 768

// Chunk is one embedded slice of a document's markdown content.
type Chunk struct {
	ID         string
	DocumentID uuid.UUID
	Content    string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Result is a single semantic-search hit.
type Result struct {
	Chunk      Chunk
	Similarity float64
}

// Chunking parameters for Split. Sized for retrieval granularity:
// paragraphs are kept whole up to maxChunkRunes.
const (
	maxChunkRunes = 1600
	minChunkRunes = 64
)
