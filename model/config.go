package model

import (
	"fmt"
	"time"
)

// ChunkingMethod selects a chunking strategy. The set is closed; unknown
// selectors are rejected with ErrInvalidConfig at configuration time.
type ChunkingMethod string

const (
	ChunkingFixedSize          ChunkingMethod = "fixed_size"
	ChunkingRecursiveCharacter ChunkingMethod = "recursive_character"
)

// SimilarityMetric selects a vector scoring function. Cosine normalizes both
// vectors before the inner product, dot product does not.
type SimilarityMetric string

const (
	MetricCosine     SimilarityMetric = "cosine"
	MetricDotProduct SimilarityMetric = "dot_product"
)

// ParseSimilarityMetric validates a metric selector.
func ParseSimilarityMetric(s string) (SimilarityMetric, error) {
	switch SimilarityMetric(s) {
	case MetricCosine:
		return MetricCosine, nil
	case MetricDotProduct:
		return MetricDotProduct, nil
	default:
		return "", fmt.Errorf("%w: unknown similarity metric %q", ErrInvalidConfig, s)
	}
}

// ChunkingConfig configures a chunking strategy. Method decides which of the
// remaining fields apply.
type ChunkingConfig struct {
	Method ChunkingMethod `json:"method"`

	// Fixed size parameters
	ChunkSize int `json:"chunk_size,omitempty"`
	Overlap   int `json:"overlap,omitempty"`

	// Recursive character parameters
	Separators   []string `json:"separators,omitempty"`
	MaxChunkSize int      `json:"max_chunk_size,omitempty"`
	MinChunkSize int      `json:"min_chunk_size,omitempty"`
}

// DefaultSeparators mirrors the ordering paragraph > line > word. The final
// empty separator marks the point where a fragment is indivisible and gets
// emitted as-is.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", " ", ""}
}

// DefaultFixedSizeConfig returns the default fixed size chunking configuration.
func DefaultFixedSizeConfig() ChunkingConfig {
	return ChunkingConfig{
		Method:    ChunkingFixedSize,
		ChunkSize: 1000,
		Overlap:   200,
	}
}

// DefaultRecursiveConfig returns the default recursive character chunking
// configuration.
func DefaultRecursiveConfig() ChunkingConfig {
	return ChunkingConfig{
		Method:       ChunkingRecursiveCharacter,
		Separators:   DefaultSeparators(),
		MaxChunkSize: 1000,
		MinChunkSize: 200,
	}
}

// QueryConfig represents configuration for a retrieval query.
type QueryConfig struct {
	TopK   int              `json:"top_k"`
	Metric SimilarityMetric `json:"metric"`

	// Scope retrieval to specific documents. Empty means all documents.
	DocumentRIDs []string `json:"document_rids,omitempty"`
}

// DefaultQueryConfig returns a sensible default configuration.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:   5,
		Metric: MetricCosine,
	}
}

// MemoryConfig configures the conversation memory store.
type MemoryConfig struct {
	// TTL after which an inactive conversation transitions to Expired.
	TTL time.Duration `json:"ttl"`
	// SlidingTTL resets the expiry clock on every append.
	SlidingTTL bool `json:"sliding_ttl"`
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration `json:"sweep_interval"`
}

// DefaultMemoryConfig mirrors the 7 day conversation retention default.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		TTL:           7 * 24 * time.Hour,
		SlidingTTL:    true,
		SweepInterval: time.Minute,
	}
}
