package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/model"
)

// EmbedFunc converts a batch of texts into fixed-dimension vectors, one per
// input text, order-preserving. Implementations batch internally for
// throughput; the batching is invisible to callers.
type EmbedFunc func(texts []string) ([][]float32, error)

// DefaultEmbeddingDimension is the output dimension of the default
// all-MiniLM-L6-v2 model.
const DefaultEmbeddingDimension = 384

// DefaultEmbedder creates an embedder using a local sentence transformer
// model. Uses the all-MiniLM-L6-v2 model which produces 384-dimensional
// embeddings.
func DefaultEmbedder() (EmbedFunc, error) {
	// Prepare model (download if needed)
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName)
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return nil, nil
		}

		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingUnavailable, err)
		}

		if len(result.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
		}

		return result.Embeddings, nil
	}, nil
}

const openAIBatchSize = 32

// OpenAIEmbedder creates an embedder backed by the OpenAI embeddings API.
// Requests are sent in batches of up to 32 texts.
func OpenAIEmbedder(apiKey string, embeddingModel string, dimension int) (EmbedFunc, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing OpenAI API key", model.ErrInvalidConfig)
	}
	if embeddingModel == "" {
		embeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", model.ErrInvalidConfig, dimension)
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return func(texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return nil, nil
		}

		vectors := make([][]float32, 0, len(texts))
		for start := 0; start < len(texts); start += openAIBatchSize {
			end := start + openAIBatchSize
			if end > len(texts) {
				end = len(texts)
			}

			resp, err := client.Embeddings.New(context.Background(), openai.EmbeddingNewParams{
				Model:      openai.EmbeddingModel(embeddingModel),
				Dimensions: openai.Int(int64(dimension)),
				Input: openai.EmbeddingNewParamsInputUnion{
					OfArrayOfStrings: texts[start:end],
				},
			})
			if err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingUnavailable, err)
			}
			if len(resp.Data) != end-start {
				return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d texts", len(resp.Data), end-start)
			}

			for _, data := range resp.Data {
				vector := make([]float32, len(data.Embedding))
				for i, v := range data.Embedding {
					vector[i] = float32(v)
				}
				vectors = append(vectors, vector)
			}
		}

		return vectors, nil
	}, nil
}

// WithRetry wraps an embedder with bounded exponential backoff. Transient
// failures are retried up to maxAttempts; exhausting the attempts surfaces
// ErrServiceDegraded to the caller.
func WithRetry(embed EmbedFunc, maxAttempts int, baseDelay time.Duration) EmbedFunc {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return func(texts []string) ([][]float32, error) {
		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				time.Sleep(baseDelay << (attempt - 1))
			}

			vectors, err := embed(texts)
			if err == nil {
				return vectors, nil
			}
			lastErr = err
		}

		return nil, fmt.Errorf("%w: after %d attempts: %v", model.ErrServiceDegraded, maxAttempts, lastErr)
	}
}
