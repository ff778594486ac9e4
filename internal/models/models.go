package models

import "time"

// Document is an uploaded artifact. It is immutable once chunked.
type Document struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	MediaType  string    `json:"media_type"`
	Text       string    `json:"text,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is a contiguous slice of a document's text. Start and End are
// rune offsets into the extracted text; Overlap is the rune count shared
// with the preceding chunk.
type Chunk struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Overlap    int    `json:"overlap"`
	Text       string `json:"text"`
}

// VectorRecord is the persisted unit in a vector store collection.
// Record id equals the chunk id; re-upserting an id overwrites vector,
// text and metadata.
type VectorRecord struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Vector     []float32         `json:"vector"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SearchResult is a query-time value, produced fresh per query.
type SearchResult struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// GenerationResult pairs an answer with the exact sources used in the
// prompt. Grounded is false when the answer was produced without any
// retrieved context.
type GenerationResult struct {
	Answer         string         `json:"answer"`
	Sources        []SearchResult `json:"sources"`
	Grounded       bool           `json:"grounded"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model,omitempty"`
	GenerationTime time.Duration  `json:"generation_time"`
}
