package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Client generates chat answers with a near-deterministic temperature.
type Client struct {
	llm         llms.Model
	model       string
	temperature float64
	timeout     time.Duration
}

// NewClient wraps an existing model.
func NewClient(llm llms.Model, model string, temperature float64, timeout time.Duration) *Client {
	return &Client{llm: llm, model: model, temperature: temperature, timeout: timeout}
}

// New builds the chat model configured in llmConfig (ollama or openai).
func New(llmConfig *config.LLMConfig) (*Client, error) {
	log.Debug().Interface("config", map[string]any{
		"provider":    llmConfig.Provider,
		"base_url":    llmConfig.BaseURL,
		"model":       llmConfig.Model,
		"temperature": llmConfig.Temperature,
	}).Msg("Creating chat model")

	var (
		llm llms.Model
		err error
	)
	switch llmConfig.Provider {
	case "ollama":
		llm, err = ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return NewClient(llm, llmConfig.Model, llmConfig.Temperature, llmConfig.Timeout), nil
}

// Generate sends the messages and returns the first choice, without any
// <think> block a reasoning model may emit.
func (c *Client) Generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", fmt.Errorf("%w: model %s: %v", models.ErrServiceUnavailable, c.model, err)
	}
	if res == nil || len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: model %s returned no choices", models.ErrServiceUnavailable, c.model)
	}

	return strings.TrimSpace(thinkRe.ReplaceAllString(res.Choices[0].Content, "")), nil
}
