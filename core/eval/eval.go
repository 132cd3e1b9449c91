package eval

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/converse/core/index"
	"github.com/siherrmann/converse/core/pipeline"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/model"
)

// Options configures the evaluation harness. Trials is how often each
// retrieval is repeated for latency averaging; quality metrics use the first
// trial only and are identical across trials anyway.
type Options struct {
	TopK      int
	Trials    int
	Dimension int
}

// DefaultOptions returns the default harness options.
func DefaultOptions(dimension int) Options {
	return Options{
		TopK:      5,
		Trials:    3,
		Dimension: dimension,
	}
}

// Harness benchmarks (chunking method, similarity metric) configurations on
// retrieval quality and latency. Generation is bypassed entirely.
type Harness struct {
	embedder pipeline.EmbedFunc
	options  Options
	log      *slog.Logger
}

// NewHarness creates an evaluation harness. The embedder must be
// deterministic for reproducible quality numbers.
func NewHarness(embedder pipeline.EmbedFunc, options Options, logger *slog.Logger) (*Harness, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: harness needs an embedder", model.ErrInvalidConfig)
	}
	if options.TopK <= 0 {
		return nil, fmt.Errorf("%w: top k must be positive, got %d", model.ErrInvalidConfig, options.TopK)
	}
	if options.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", model.ErrInvalidConfig, options.Dimension)
	}
	if options.Trials < 1 {
		options.Trials = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{
		embedder: embedder,
		options:  options,
		log:      logger,
	}, nil
}

// Run benchmarks every configuration against the corpus and queries. Each
// configuration gets a freshly built index, chunk boundaries depend on the
// chunking strategy so no config may reuse another's index.
func (h *Harness) Run(documents []*model.Document, queries []model.EvaluationQuery, configs []model.EvaluationConfig) (*model.EvaluationReport, error) {
	if len(documents) == 0 || len(queries) == 0 || len(configs) == 0 {
		return nil, fmt.Errorf("%w: evaluation needs documents, queries and configurations", model.ErrInvalidConfig)
	}

	// All chunkers are validated before any ingestion work begins.
	for _, config := range configs {
		if _, err := pipeline.NewChunker(config.Chunking); err != nil {
			return nil, err
		}
		if _, err := model.ParseSimilarityMetric(string(config.Metric)); err != nil {
			return nil, err
		}
	}

	queryVectors, err := h.embedQueries(queries)
	if err != nil {
		return nil, err
	}

	results := make([]model.EvaluationResult, 0, len(configs))
	for _, config := range configs {
		result, err := h.runConfig(documents, queries, queryVectors, config)
		if err != nil {
			h.log.Error(
				"evaluation configuration failed",
				slog.String("chunking", string(config.Chunking.Method)),
				slog.String("metric", string(config.Metric)),
				slog.Any("error", err),
			)
			return nil, err
		}
		results = append(results, *result)
	}

	h.warnOnDegenerateGrid(results)

	report := &model.EvaluationReport{
		Results:          results,
		ChunkingAverages: groupAverages(results, func(r model.EvaluationResult) string { return string(r.ChunkingMethod) }),
		MetricAverages:   groupAverages(results, func(r model.EvaluationResult) string { return string(r.Metric) }),
		Best:             bestResult(results),
		NumQueries:       len(queries),
		NumDocs:          len(documents),
		GeneratedAt:      time.Now(),
	}

	return report, nil
}

func (h *Harness) embedQueries(queries []model.EvaluationQuery) ([][]float32, error) {
	texts := make([]string, len(queries))
	for i, query := range queries {
		texts[i] = query.QueryText
	}
	vectors, err := h.embedder(texts)
	if err != nil {
		return nil, helper.NewError("embed evaluation queries", err)
	}
	if len(vectors) != len(queries) {
		return nil, helper.NewError("embed evaluation queries", fmt.Errorf("got %d vectors for %d queries", len(vectors), len(queries)))
	}
	return vectors, nil
}

func (h *Harness) runConfig(documents []*model.Document, queries []model.EvaluationQuery, queryVectors [][]float32, config model.EvaluationConfig) (*model.EvaluationResult, error) {
	idx, err := h.buildIndex(documents, config.Chunking)
	if err != nil {
		return nil, err
	}

	var precisionSum, recallSum, latencySum float64
	for i, query := range queries {
		var hits []*model.SearchHit
		for trial := 0; trial < h.options.Trials; trial++ {
			start := time.Now()
			trialHits, err := idx.Search(queryVectors[i], h.options.TopK, config.Metric, nil)
			latencySum += float64(time.Since(start).Microseconds()) / 1000.0
			if err != nil {
				return nil, helper.NewError("evaluation retrieval", err)
			}
			if trial == 0 {
				hits = trialHits
			}
		}

		precision, recall := scoreQuery(hits, query.ExpectedRelevantChunkIDs)
		precisionSum += precision
		recallSum += recall
	}

	// Macro averages across queries. F1 is the harmonic mean of the macro
	// precision and macro recall; accuracy collapses to precision in this
	// binary relevance setting.
	n := float64(len(queries))
	precision := precisionSum / n
	recall := recallSum / n

	result := &model.EvaluationResult{
		ChunkingMethod: config.Chunking.Method,
		Metric:         config.Metric,
		Accuracy:       precision,
		Precision:      precision,
		Recall:         recall,
		F1:             f1Score(precision, recall),
		LatencyMS:      latencySum / (n * float64(h.options.Trials)),
	}

	h.log.Info(
		"evaluated configuration",
		slog.String("chunking", string(result.ChunkingMethod)),
		slog.String("metric", string(result.Metric)),
		slog.Float64("precision", result.Precision),
		slog.Float64("recall", result.Recall),
		slog.Float64("f1", result.F1),
		slog.Float64("latencyMs", result.LatencyMS),
	)

	return result, nil
}

func (h *Harness) buildIndex(documents []*model.Document, chunking model.ChunkingConfig) (*index.Index, error) {
	chunker, err := pipeline.NewChunker(chunking)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.NewPipeline(chunker, h.embedder, h.options.Dimension)
	if err != nil {
		return nil, err
	}
	idx, err := index.NewIndex(h.options.Dimension)
	if err != nil {
		return nil, err
	}

	for _, doc := range documents {
		chunks, err := p.Process(doc)
		if err != nil {
			return nil, helper.NewError("evaluation ingestion", err)
		}
		if err := idx.UpsertAll(chunks); err != nil {
			return nil, helper.NewError("evaluation indexing", err)
		}
	}

	return idx, nil
}

func scoreQuery(hits []*model.SearchHit, expected []string) (precision, recall float64) {
	if len(hits) == 0 || len(expected) == 0 {
		return 0, 0
	}

	relevant := make(map[string]bool, len(expected))
	for _, id := range expected {
		relevant[id] = true
	}

	intersection := 0
	for _, hit := range hits {
		if relevant[hit.ChunkID] {
			intersection++
		}
	}

	return float64(intersection) / float64(len(hits)), float64(intersection) / float64(len(expected))
}

func f1Score(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

func groupAverages(results []model.EvaluationResult, groupOf func(model.EvaluationResult) string) []model.GroupAverage {
	var order []string
	sums := map[string]*model.GroupAverage{}
	counts := map[string]int{}

	for _, result := range results {
		group := groupOf(result)
		if _, ok := sums[group]; !ok {
			order = append(order, group)
			sums[group] = &model.GroupAverage{Group: group}
		}
		sums[group].AvgF1 += result.F1
		sums[group].AvgLatency += result.LatencyMS
		counts[group]++
	}

	averages := make([]model.GroupAverage, 0, len(order))
	for _, group := range order {
		average := sums[group]
		average.AvgF1 /= float64(counts[group])
		average.AvgLatency /= float64(counts[group])
		averages = append(averages, *average)
	}

	return averages
}

func bestResult(results []model.EvaluationResult) *model.EvaluationResult {
	if len(results) == 0 {
		return nil
	}
	best := results[0]
	for _, result := range results[1:] {
		if result.F1 > best.F1 || (result.F1 == best.F1 && result.LatencyMS < best.LatencyMS) {
			best = result
		}
	}
	return &best
}

// warnOnDegenerateGrid flags a query set that cannot discriminate between
// configurations, identical quality numbers across the whole grid usually
// mean the judgments are too coarse for the corpus size.
func (h *Harness) warnOnDegenerateGrid(results []model.EvaluationResult) {
	if len(results) < 2 {
		return
	}
	first := results[0]
	for _, result := range results[1:] {
		if result.Precision != first.Precision || result.Recall != first.Recall || result.F1 != first.F1 {
			return
		}
	}
	h.log.Warn(
		"identical quality metrics across all configurations, the query set cannot discriminate between them",
		slog.Float64("precision", first.Precision),
		slog.Float64("recall", first.Recall),
		slog.Float64("f1", first.F1),
	)
}
