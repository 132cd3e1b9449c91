package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Chunk represents a contiguous span of a document's raw text, the unit of
// embedding and retrieval. StartOffset/EndOffset are byte offsets into the
// owning document's raw text with StartOffset < EndOffset.
type Chunk struct {
	ID            string    `json:"id"`
	DocumentRID   uuid.UUID `json:"document_rid"`
	Text          string    `json:"text"`
	StartOffset   int       `json:"start_offset"`
	EndOffset     int       `json:"end_offset"`
	SequenceIndex int       `json:"sequence_index"`
	Embedding     []float32 `json:"embedding,omitempty"`
}

// ChunkID builds the deterministic chunk id for a document and sequence
// index. Deterministic ids keep evaluation runs reproducible.
func ChunkID(documentRID uuid.UUID, sequenceIndex int) string {
	return fmt.Sprintf("%s:%d", documentRID, sequenceIndex)
}

// SearchHit is one result of a top-k similarity query.
type SearchHit struct {
	ChunkID     string    `json:"chunk_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Text        string    `json:"text"`
	Score       float64   `json:"score"`
}

// RetrievalResult represents a chunk retrieved for a query.
type RetrievalResult struct {
	ChunkID     string    `json:"chunk_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Text        string    `json:"text"`
	Score       float64   `json:"score"`
	Metric      string    `json:"metric"`
}
