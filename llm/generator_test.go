package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siherrmann/converse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIGenerator(t *testing.T) {
	t.Run("Missing api key rejected", func(t *testing.T) {
		_, err := NewOpenAIGenerator("", "")

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Valid configuration", func(t *testing.T) {
		generator, err := NewOpenAIGenerator("test-key", "")

		require.NoError(t, err)
		assert.NotNil(t, generator)
	})
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("Succeeds without retrying", func(t *testing.T) {
		calls := 0
		generator := WithRetry(GeneratorFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			calls++
			return "answer", nil
		}), 3, time.Millisecond)

		response, err := generator.Generate(ctx, "system", "user")

		require.NoError(t, err)
		assert.Equal(t, "answer", response)
		assert.Equal(t, 1, calls)
	})

	t.Run("Recovers after transient failures", func(t *testing.T) {
		calls := 0
		generator := WithRetry(GeneratorFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("rate limited")
			}
			return "answer", nil
		}), 3, time.Millisecond)

		response, err := generator.Generate(ctx, "system", "user")

		require.NoError(t, err)
		assert.Equal(t, "answer", response)
		assert.Equal(t, 3, calls)
	})

	t.Run("Exhausted attempts surface generation failure", func(t *testing.T) {
		calls := 0
		generator := WithRetry(GeneratorFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			calls++
			return "", errors.New("rate limited")
		}), 3, time.Millisecond)

		_, err := generator.Generate(ctx, "system", "user")

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrGenerationFailed)
		assert.Equal(t, 3, calls)
	})

	t.Run("Cancelled context stops retries", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		generator := WithRetry(GeneratorFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			calls++
			return "", errors.New("rate limited")
		}), 5, time.Minute)

		_, err := generator.Generate(cancelled, "system", "user")

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrGenerationFailed)
		assert.Equal(t, 1, calls)
	})
}
