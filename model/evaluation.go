package model

import "time"

// EvaluationQuery is one benchmark query with its relevance judgments.
// ExpectedRelevantChunkIDs holds deterministic chunk ids (see ChunkID).
type EvaluationQuery struct {
	ID                       string   `json:"id"`
	QueryText                string   `json:"query_text"`
	ExpectedRelevantChunkIDs []string `json:"expected_relevant_chunk_ids"`
}

// EvaluationConfig is one (chunking method, similarity metric) combination
// benchmarked by the harness.
type EvaluationConfig struct {
	Chunking ChunkingConfig   `json:"chunking"`
	Metric   SimilarityMetric `json:"metric"`
}

// DefaultEvaluationGrid is the full grid of both chunking methods crossed
// with both similarity metrics.
func DefaultEvaluationGrid() []EvaluationConfig {
	return []EvaluationConfig{
		{Chunking: DefaultFixedSizeConfig(), Metric: MetricCosine},
		{Chunking: DefaultFixedSizeConfig(), Metric: MetricDotProduct},
		{Chunking: DefaultRecursiveConfig(), Metric: MetricCosine},
		{Chunking: DefaultRecursiveConfig(), Metric: MetricDotProduct},
	}
}

// EvaluationResult is one row of the benchmark, macro-averaged across all
// queries for a configuration. Accuracy is defined identically to precision
// in this binary relevance setting (single positive class, no explicit
// negative judgments) and is reported separately only for continuity with
// the report format. Derived, never a source of truth.
type EvaluationResult struct {
	ChunkingMethod ChunkingMethod   `json:"chunking_method"`
	Metric         SimilarityMetric `json:"similarity_metric"`
	Accuracy       float64          `json:"accuracy"`
	Precision      float64          `json:"precision"`
	Recall         float64          `json:"recall"`
	F1             float64          `json:"f1"`
	LatencyMS      float64          `json:"latency_ms"`
}

// GroupAverage aggregates F1 and latency over a group of result rows, either
// per chunking method (averaged over metrics) or per metric (averaged over
// chunking methods).
type GroupAverage struct {
	Group      string  `json:"group"`
	AvgF1      float64 `json:"avg_f1"`
	AvgLatency float64 `json:"avg_latency_ms"`
}

// EvaluationReport is the full harness output. Quality numbers are identical
// run-to-run for a fixed corpus, k and judgments; only latency varies.
type EvaluationReport struct {
	Results          []EvaluationResult `json:"results"`
	ChunkingAverages []GroupAverage     `json:"chunking_averages"`
	MetricAverages   []GroupAverage     `json:"metric_averages"`
	// Best is the configuration with the highest F1, ties broken by lowest
	// latency.
	Best        *EvaluationResult `json:"best,omitempty"`
	NumQueries  int               `json:"num_queries"`
	NumDocs     int               `json:"num_documents"`
	GeneratedAt time.Time         `json:"generated_at"`
}
