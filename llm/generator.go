package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/siherrmann/converse/model"
)

// Generator produces an assistant response for an assembled prompt.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIGenerator generates responses through the OpenAI chat completions
// API.
type OpenAIGenerator struct {
	client    openai.Client
	chatModel string
}

// NewOpenAIGenerator creates a generator for the given model. An empty model
// name falls back to gpt-4o-mini.
func NewOpenAIGenerator(apiKey string, chatModel string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing OpenAI API key", model.ErrInvalidConfig)
	}
	if chatModel == "" {
		chatModel = openai.ChatModelGPT4oMini
	}
	return &OpenAIGenerator{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		chatModel: chatModel,
	}, nil
}

// Generate sends the prompt pair to the chat completions API. Failures wrap
// ErrGenerationFailed so callers can fall back to a degraded response.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model: g.chatModel,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", model.ErrGenerationFailed)
	}
	return resp.Choices[0].Message.Content, nil
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// WithRetry wraps a generator with bounded exponential backoff. Context
// cancellation stops the retries immediately.
func WithRetry(generator Generator, maxAttempts int, baseDelay time.Duration) Generator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return GeneratorFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return "", fmt.Errorf("%w: %v", model.ErrGenerationFailed, ctx.Err())
				case <-time.After(baseDelay << (attempt - 1)):
				}
			}

			response, err := generator.Generate(ctx, systemPrompt, userPrompt)
			if err == nil {
				return response, nil
			}
			lastErr = err
		}

		return "", fmt.Errorf("%w: after %d attempts: %v", model.ErrGenerationFailed, maxAttempts, lastErr)
	})
}
