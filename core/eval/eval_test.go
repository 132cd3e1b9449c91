package eval

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/siherrmann/converse/core/pipeline"
	"github.com/siherrmann/converse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureVocabulary = []string{
	"alpha", "bravo", "charlie", "delta", "echo",
	"foxtrot", "golf", "hotel", "india", "juliett",
}

// vocabularyEmbedder maps a text to word counts over the fixture vocabulary.
// Deterministic, so repeated runs retrieve identically.
func vocabularyEmbedder(texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, len(fixtureVocabulary))
		for _, word := range strings.Fields(text) {
			for j, vocab := range fixtureVocabulary {
				if word == vocab {
					vector[j]++
				}
			}
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// fixtureCorpus builds ten single-word documents, one chunk each under every
// chunking configuration.
func fixtureCorpus(t *testing.T) []*model.Document {
	t.Helper()
	documents := make([]*model.Document, len(fixtureVocabulary))
	for i, word := range fixtureVocabulary {
		documents[i] = model.NewDocument(word, word+".txt", word)
	}
	return documents
}

// fixtureQueries builds twelve queries that each mention five documents with
// equal weight. Nine queries judge two of the five as relevant, three judge
// three, so macro precision lands at (9*0.4 + 3*0.6)/12 = 0.45 with full
// recall.
func fixtureQueries(t *testing.T, documents []*model.Document) []model.EvaluationQuery {
	t.Helper()

	chunkID := func(docIndex int) string {
		return model.ChunkID(documents[docIndex].RID, 0)
	}
	queryText := func(indexes ...int) string {
		words := make([]string, len(indexes))
		for i, index := range indexes {
			words[i] = fixtureVocabulary[index]
		}
		return strings.Join(words, " ")
	}

	queries := make([]model.EvaluationQuery, 0, 12)
	for q := 0; q < 12; q++ {
		// Five mentioned documents, rotating through the corpus.
		mentioned := []int{q % 10, (q + 1) % 10, (q + 2) % 10, (q + 3) % 10, (q + 4) % 10}

		relevantCount := 2
		if q >= 9 {
			relevantCount = 3
		}
		expected := make([]string, relevantCount)
		for i := 0; i < relevantCount; i++ {
			expected[i] = chunkID(mentioned[i])
		}

		queries = append(queries, model.EvaluationQuery{
			ID:                       queryText(mentioned[0]) + "-query",
			QueryText:                queryText(mentioned...),
			ExpectedRelevantChunkIDs: expected,
		})
	}
	return queries
}

func newTestHarness(t *testing.T) *Harness {
	t.Helper()
	harness, err := NewHarness(
		vocabularyEmbedder,
		Options{TopK: 5, Trials: 2, Dimension: len(fixtureVocabulary)},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	return harness
}

func TestNewHarness(t *testing.T) {
	t.Run("Nil embedder rejected", func(t *testing.T) {
		_, err := NewHarness(nil, Options{TopK: 5, Dimension: 10}, nil)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Non positive top k rejected", func(t *testing.T) {
		_, err := NewHarness(vocabularyEmbedder, Options{TopK: 0, Dimension: 10}, nil)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Non positive dimension rejected", func(t *testing.T) {
		_, err := NewHarness(vocabularyEmbedder, Options{TopK: 5, Dimension: 0}, nil)

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})
}

func TestHarnessRun(t *testing.T) {
	documents := fixtureCorpus(t)
	queries := fixtureQueries(t, documents)

	t.Run("Quality metrics match the fixture judgments", func(t *testing.T) {
		harness := newTestHarness(t)

		report, err := harness.Run(documents, queries, model.DefaultEvaluationGrid())

		require.NoError(t, err)
		require.Equal(t, 4, len(report.Results))
		assert.Equal(t, 12, report.NumQueries)
		assert.Equal(t, 10, report.NumDocs)

		for _, result := range report.Results {
			assert.InDelta(t, 0.45, result.Precision, 1e-9)
			assert.InDelta(t, 0.45, result.Accuracy, 1e-9)
			assert.InDelta(t, 1.0, result.Recall, 1e-9)
			assert.InDelta(t, 2*0.45*1.0/(0.45+1.0), result.F1, 1e-9)
			assert.GreaterOrEqual(t, result.LatencyMS, 0.0)
		}
	})

	t.Run("Repeated runs produce identical quality numbers", func(t *testing.T) {
		harness := newTestHarness(t)

		first, err := harness.Run(documents, queries, model.DefaultEvaluationGrid())
		require.NoError(t, err)
		second, err := harness.Run(documents, queries, model.DefaultEvaluationGrid())
		require.NoError(t, err)

		require.Equal(t, len(first.Results), len(second.Results))
		for i := range first.Results {
			assert.Equal(t, first.Results[i].Precision, second.Results[i].Precision)
			assert.Equal(t, first.Results[i].Recall, second.Results[i].Recall)
			assert.Equal(t, first.Results[i].F1, second.Results[i].F1)
		}
	})

	t.Run("Grouped averages cover both groupings", func(t *testing.T) {
		harness := newTestHarness(t)

		report, err := harness.Run(documents, queries, model.DefaultEvaluationGrid())
		require.NoError(t, err)

		require.Equal(t, 2, len(report.ChunkingAverages))
		assert.Equal(t, "fixed_size", report.ChunkingAverages[0].Group)
		assert.Equal(t, "recursive_character", report.ChunkingAverages[1].Group)

		require.Equal(t, 2, len(report.MetricAverages))
		assert.Equal(t, "cosine", report.MetricAverages[0].Group)
		assert.Equal(t, "dot_product", report.MetricAverages[1].Group)

		for _, average := range append(report.ChunkingAverages, report.MetricAverages...) {
			assert.InDelta(t, 2*0.45*1.0/(0.45+1.0), average.AvgF1, 1e-9)
		}
	})

	t.Run("Best configuration selected by f1 then latency", func(t *testing.T) {
		harness := newTestHarness(t)

		report, err := harness.Run(documents, queries, model.DefaultEvaluationGrid())
		require.NoError(t, err)

		require.NotNil(t, report.Best)
		assert.InDelta(t, 2*0.45*1.0/(0.45+1.0), report.Best.F1, 1e-9)
		for _, result := range report.Results {
			assert.LessOrEqual(t, report.Best.LatencyMS, result.LatencyMS)
		}
	})

	t.Run("Invalid chunking fails fast before ingestion", func(t *testing.T) {
		harness := newTestHarness(t)

		_, err := harness.Run(documents, queries, []model.EvaluationConfig{
			{Chunking: model.ChunkingConfig{Method: model.ChunkingFixedSize, ChunkSize: 100, Overlap: 100}, Metric: model.MetricCosine},
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Unknown metric fails fast", func(t *testing.T) {
		harness := newTestHarness(t)

		_, err := harness.Run(documents, queries, []model.EvaluationConfig{
			{Chunking: model.DefaultFixedSizeConfig(), Metric: "euclidean"},
		})

		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Empty inputs rejected", func(t *testing.T) {
		harness := newTestHarness(t)

		_, err := harness.Run(nil, queries, model.DefaultEvaluationGrid())
		assert.ErrorIs(t, err, model.ErrInvalidConfig)

		_, err = harness.Run(documents, nil, model.DefaultEvaluationGrid())
		assert.ErrorIs(t, err, model.ErrInvalidConfig)

		_, err = harness.Run(documents, queries, nil)
		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})
}

func TestRenderMarkdown(t *testing.T) {
	documents := fixtureCorpus(t)
	queries := fixtureQueries(t, documents)
	harness := newTestHarness(t)

	report, err := harness.Run(documents, queries, model.DefaultEvaluationGrid())
	require.NoError(t, err)

	rendered := RenderMarkdown(report)

	assert.Contains(t, rendered, "# Retrieval Evaluation Report")
	assert.Contains(t, rendered, "## Summary")
	assert.Contains(t, rendered, "## Detailed Results")
	assert.Contains(t, rendered, "### Chunking Methods Comparison")
	assert.Contains(t, rendered, "### Similarity Metrics Comparison")
	assert.Contains(t, rendered, "0.6207")
	assert.Contains(t, rendered, "fixed_size")
	assert.Contains(t, rendered, "recursive_character")
	assert.Contains(t, rendered, "Evaluated 12 queries against 10 documents.")
}

var _ pipeline.EmbedFunc = vocabularyEmbedder
