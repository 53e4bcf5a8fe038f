// Package llm wraps the language-model collaborator. The client speaks the
// OpenAI-compatible chat API (Groq in production) and owns the retry
// policy: completion requests are idempotent, so a small bounded number of
// attempts is safe here and nowhere above.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/kanjilens/kanjilens/pkg/config"
	"github.com/kanjilens/kanjilens/pkg/logging"
)

// Client issues one completion request and returns the raw response text.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ChatClient is a langchaingo-backed Client.
type ChatClient struct {
	model       llms.Model
	modelName   string
	temperature float64
	maxTokens   int
	maxRetries  int
}

// NewChatClient builds a client for the configured endpoint.
func NewChatClient(cfg *config.LLMConfig) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is not configured")
	}
	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &ChatClient{
		model:       model,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
	}, nil
}

// Complete sends a system+user prompt pair and returns the first choice.
func (c *ChatClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	logger := logging.GetCollaboratorLogger("llm", "complete").With().Str("model", c.modelName).Logger()

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			logger.Warn().Int("attempt", attempt+1).Err(lastErr).Msg("Retrying LLM request")
		}

		resp, err := c.model.GenerateContent(ctx, messages,
			llms.WithTemperature(c.temperature),
			llms.WithMaxTokens(c.maxTokens),
		)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("LLM returned no choices")
			continue
		}
		return resp.Choices[0].Content, nil
	}
	return "", fmt.Errorf("LLM request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}
