package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

// Client embeds text with one model for both ingestion and querying.
type Client struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	timeout   time.Duration
}

// NewClient wraps an existing embedder. A zero dimension disables the size check.
func NewClient(embedder embeddings.Embedder, model string, dimension int, timeout time.Duration) *Client {
	return &Client{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		timeout:   timeout,
	}
}

// New builds the embedder configured in llmConfig (ollama or openai).
func New(llmConfig *config.LLMConfig, dimension int) (*Client, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch llmConfig.Provider {
	case "ollama":
		client, err = ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(llmConfig.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewClient(embedder, llmConfig.Model, dimension, llmConfig.Timeout), nil
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Embed returns the vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding %s: %v", models.ErrServiceUnavailable, c.model, err)
	}
	if err := c.check(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// EmbedBatch returns one vector per text, in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding %s: %v", models.ErrServiceUnavailable, c.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedding %s returned %d vectors for %d texts", models.ErrServiceUnavailable, c.model, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := c.check(v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// Ping embeds a probe text and reports whether the backend answered.
func (c *Client) Ping(ctx context.Context) error {
	v, err := c.Embed(ctx, "test")
	if err != nil {
		return err
	}
	if len(v) == 0 {
		return fmt.Errorf("%w: empty embedding", models.ErrServiceUnavailable)
	}
	return nil
}

// ChromemFunc adapts the client to chromem-go.
func (c *Client) ChromemFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.Embed(ctx, text)
	}
}

func (c *Client) check(v []float32) error {
	if c.dimension > 0 && len(v) != c.dimension {
		return fmt.Errorf("%w: got %d, index expects %d", models.ErrDimensionMismatch, len(v), c.dimension)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
