package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Document represents a source document. Immutable once ingested.
type Document struct {
	ID         int64     `json:"id"`
	RID        uuid.UUID `json:"rid"`
	Title      string    `json:"title"`
	Source     string    `json:"source,omitempty"`
	RawText    string    `json:"raw_text,omitempty" db:"-"` // Used for chunking, not stored in DB
	IngestedAt time.Time `json:"ingested_at"`
}

// NewDocument creates a document with a fresh RID from raw text.
func NewDocument(title, source, rawText string) *Document {
	return &Document{
		RID:     uuid.New(),
		Title:   title,
		Source:  source,
		RawText: rawText,
	}
}

// NewDocumentFromFile reads a file and creates a Document with the file content.
// The title defaults to the filename, and source to the file path.
func NewDocumentFromFile(filePath string) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	return &Document{
		RID:     uuid.New(),
		Title:   title,
		Source:  filePath,
		RawText: string(content),
	}, nil
}
