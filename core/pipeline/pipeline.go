package pipeline

import (
	"fmt"

	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/model"
)

// Pipeline combines a chunking strategy with an embedding provider.
type Pipeline struct {
	Chunker   ChunkFunc
	Embedder  EmbedFunc
	Dimension int
}

// NewPipeline creates a new processing pipeline. Dimension is the fixed
// output dimension of the embedder; every produced vector is checked against
// it.
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc, dimension int) (*Pipeline, error) {
	if chunker == nil || embedder == nil {
		return nil, fmt.Errorf("%w: pipeline needs both a chunker and an embedder", model.ErrInvalidConfig)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", model.ErrInvalidConfig, dimension)
	}

	return &Pipeline{
		Chunker:   chunker,
		Embedder:  embedder,
		Dimension: dimension,
	}, nil
}

// Process splits a document's raw text into chunks and embeds them in one
// batch. Chunk ids are deterministic per document and sequence index. Empty
// text yields no chunks and no error.
func (p *Pipeline) Process(doc *model.Document) ([]*model.Chunk, error) {
	fragments, err := p.Chunker(doc.RawText)
	if err != nil {
		return nil, helper.NewError("chunk document", err)
	}
	if len(fragments) == 0 {
		return nil, nil
	}

	texts := make([]string, len(fragments))
	for i, fragment := range fragments {
		texts[i] = fragment.Text
	}

	vectors, err := p.Embedder(texts)
	if err != nil {
		return nil, helper.NewError("embed chunks", err)
	}
	if len(vectors) != len(fragments) {
		return nil, helper.NewError("embed chunks", fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(fragments)))
	}

	chunks := make([]*model.Chunk, len(fragments))
	for i, fragment := range fragments {
		if len(vectors[i]) != p.Dimension {
			return nil, helper.NewError("embed chunks", fmt.Errorf("vector %d has dimension %d, want %d", i, len(vectors[i]), p.Dimension))
		}
		chunks[i] = &model.Chunk{
			ID:            model.ChunkID(doc.RID, i),
			DocumentRID:   doc.RID,
			Text:          fragment.Text,
			StartOffset:   fragment.Start,
			EndOffset:     fragment.End,
			SequenceIndex: i,
			Embedding:     vectors[i],
		}
	}

	return chunks, nil
}

// EmbedQuery embeds a single query text through the pipeline's embedder.
func (p *Pipeline) EmbedQuery(query string) ([]float32, error) {
	vectors, err := p.Embedder([]string{query})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if len(vectors) != 1 {
		return nil, helper.NewError("embed query", fmt.Errorf("got %d vectors for one query", len(vectors)))
	}
	if len(vectors[0]) != p.Dimension {
		return nil, helper.NewError("embed query", fmt.Errorf("query vector has dimension %d, want %d", len(vectors[0]), p.Dimension))
	}
	return vectors[0], nil
}
