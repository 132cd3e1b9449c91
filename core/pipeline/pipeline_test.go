package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/siherrmann/converse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipeline(t *testing.T) {
	chunker, err := FixedSizeChunker(100, 10)
	require.NoError(t, err)

	t.Run("Valid pipeline", func(t *testing.T) {
		pipeline, err := NewPipeline(chunker, stubEmbedder(4), 4)

		require.NoError(t, err)
		assert.NotNil(t, pipeline)
	})

	t.Run("Nil chunker rejected", func(t *testing.T) {
		_, err := NewPipeline(nil, stubEmbedder(4), 4)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Nil embedder rejected", func(t *testing.T) {
		_, err := NewPipeline(chunker, nil, 4)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Non positive dimension rejected", func(t *testing.T) {
		_, err := NewPipeline(chunker, stubEmbedder(4), 0)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})
}

func TestPipelineProcess(t *testing.T) {
	chunker, err := FixedSizeChunker(20, 5)
	require.NoError(t, err)
	pipeline, err := NewPipeline(chunker, stubEmbedder(4), 4)
	require.NoError(t, err)

	t.Run("Chunks carry deterministic ids and offsets", func(t *testing.T) {
		doc := model.NewDocument("Test", "test.txt", strings.Repeat("x", 50))
		chunks, err := pipeline.Process(doc)

		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for i, chunk := range chunks {
			assert.Equal(t, fmt.Sprintf("%v:%v", doc.RID, i), chunk.ID)
			assert.Equal(t, doc.RID, chunk.DocumentRID)
			assert.Equal(t, i, chunk.SequenceIndex)
			assert.Equal(t, doc.RawText[chunk.StartOffset:chunk.EndOffset], chunk.Text)
			assert.Equal(t, 4, len(chunk.Embedding))
		}
	})

	t.Run("Reprocessing yields the same ids", func(t *testing.T) {
		doc := model.NewDocument("Test", "test.txt", strings.Repeat("x", 50))
		first, err := pipeline.Process(doc)
		require.NoError(t, err)
		second, err := pipeline.Process(doc)
		require.NoError(t, err)

		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].ID, second[i].ID)
		}
	})

	t.Run("Empty document yields no chunks", func(t *testing.T) {
		doc := model.NewDocument("Empty", "empty.txt", "")
		chunks, err := pipeline.Process(doc)

		require.NoError(t, err)
		assert.Equal(t, 0, len(chunks))
	})

	t.Run("Embedder failure surfaces", func(t *testing.T) {
		failing, err := NewPipeline(chunker, func(texts []string) ([][]float32, error) {
			return nil, errors.New("embedder down")
		}, 4)
		require.NoError(t, err)

		doc := model.NewDocument("Test", "test.txt", "some text to chunk")
		_, err = failing.Process(doc)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embed chunks")
	})

	t.Run("Dimension mismatch surfaces", func(t *testing.T) {
		wrongDim, err := NewPipeline(chunker, stubEmbedder(3), 4)
		require.NoError(t, err)

		doc := model.NewDocument("Test", "test.txt", "some text to chunk")
		_, err = wrongDim.Process(doc)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension")
	})
}

func TestPipelineEmbedQuery(t *testing.T) {
	chunker, err := FixedSizeChunker(20, 5)
	require.NoError(t, err)
	pipeline, err := NewPipeline(chunker, stubEmbedder(4), 4)
	require.NoError(t, err)

	t.Run("Single query vector", func(t *testing.T) {
		vector, err := pipeline.EmbedQuery("what is retrieval")

		require.NoError(t, err)
		assert.Equal(t, 4, len(vector))
	})

	t.Run("Embedder failure surfaces", func(t *testing.T) {
		failing, err := NewPipeline(chunker, func(texts []string) ([][]float32, error) {
			return nil, errors.New("embedder down")
		}, 4)
		require.NoError(t, err)

		_, err = failing.EmbedQuery("query")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embed query")
	})
}
