package retrieval

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/siherrmann/converse/core/index"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/model"
)

// Engine performs top-k vector retrieval over an in-memory index.
type Engine struct {
	index *index.Index
	log   *slog.Logger
}

// NewEngine creates a new retrieval engine.
func NewEngine(idx *index.Index, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		index: idx,
		log:   logger,
	}
}

// Retrieve performs similarity search for an embedded query. Results come
// back in descending score order under the configured metric, with stable
// ordering for equal scores.
func (e *Engine) Retrieve(ctx context.Context, embedding []float32, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	if config == nil {
		defaultConfig := model.DefaultQueryConfig()
		config = &defaultConfig
	}

	scope, err := parseScope(config.DocumentRIDs)
	if err != nil {
		return nil, helper.NewError("parse retrieval scope", err)
	}

	hits, err := e.index.Search(embedding, config.TopK, config.Metric, scope)
	if err != nil {
		return nil, helper.NewError("search index", err)
	}

	results := make([]*model.RetrievalResult, len(hits))
	for i, hit := range hits {
		results[i] = &model.RetrievalResult{
			ChunkID:     hit.ChunkID,
			DocumentRID: hit.DocumentRID,
			Text:        hit.Text,
			Score:       hit.Score,
			Metric:      string(config.Metric),
		}
	}

	e.log.Debug(
		"retrieved chunks",
		slog.Int("count", len(results)),
		slog.Int("topK", config.TopK),
		slog.String("metric", string(config.Metric)),
	)

	return results, nil
}

func parseScope(documentRIDs []string) ([]uuid.UUID, error) {
	if len(documentRIDs) == 0 {
		return nil, nil
	}
	scope := make([]uuid.UUID, len(documentRIDs))
	for i, rid := range documentRIDs {
		parsed, err := uuid.Parse(rid)
		if err != nil {
			return nil, err
		}
		scope[i] = parsed
	}
	return scope, nil
}
