package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

// Searcher is the read side of a vector index.
type Searcher interface {
	SimilaritySearch(ctx context.Context, vector []float32, k int, threshold float32) ([]models.ScoredPassage, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds the passages relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]models.ScoredPassage, error)
}

// Generator produces the model reply for a message list.
type Generator interface {
	Generate(ctx context.Context, messages []llms.MessageContent) (string, error)
}

// VectorRetriever embeds the question and runs a thresholded similarity search.
type VectorRetriever struct {
	embedder  QueryEmbedder
	searcher  Searcher
	k         int
	threshold float32
}

func NewRetriever(embedder QueryEmbedder, searcher Searcher, k int, threshold float32) *VectorRetriever {
	return &VectorRetriever{embedder: embedder, searcher: searcher, k: k, threshold: threshold}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, question string) ([]models.ScoredPassage, error) {
	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	passages, err := r.searcher.SimilaritySearch(ctx, vector, r.k, r.threshold)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("k", r.k).Float32("threshold", r.threshold).Int("passages", len(passages)).Msg("Retrieved passages")
	return passages, nil
}

// Chain runs one retrieval-augmented conversation turn.
type Chain struct {
	retriever       Retriever
	generator       Generator
	systemPrompt    string
	fallbackOnEmpty bool
	fallbackAnswer  string
	historyTurns    int
	condense        bool
}

type Option func(*Chain)

func WithSystemPrompt(prompt string) Option {
	return func(c *Chain) {
		if prompt != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithFallback controls the answer given when nothing passes the threshold.
// When disabled the model is still called, with an empty context.
func WithFallback(enabled bool, answer string) Option {
	return func(c *Chain) {
		c.fallbackOnEmpty = enabled
		if answer != "" {
			c.fallbackAnswer = answer
		}
	}
}

// WithHistoryTurns limits how many past question/answer turns reach the
// model. Zero keeps the whole history.
func WithHistoryTurns(n int) Option {
	return func(c *Chain) {
		if n >= 0 {
			c.historyTurns = n
		}
	}
}

// WithCondenseQuestion rewrites follow-up questions into standalone ones
// before retrieval.
func WithCondenseQuestion(on bool) Option {
	return func(c *Chain) { c.condense = on }
}

// OptionsFromConfig maps the rag section of the config onto chain options.
func OptionsFromConfig(cfg *config.RAGConfig) []Option {
	return []Option{
		WithSystemPrompt(cfg.SystemPrompt),
		WithFallback(cfg.FallbackEnabled(), cfg.FallbackAnswer),
		WithHistoryTurns(cfg.MaxHistoryTurns),
		WithCondenseQuestion(cfg.CondenseQuestion),
	}
}

func NewChain(retriever Retriever, generator Generator, opts ...Option) *Chain {
	c := &Chain{
		retriever:       retriever,
		generator:       generator,
		systemPrompt:    models.SystemPromptTemplate,
		fallbackOnEmpty: true,
		fallbackAnswer:  models.FallbackAnswer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run answers question given the prior turns of the conversation. History is
// not modified; the caller records the turn.
func (c *Chain) Run(ctx context.Context, history []llms.ChatMessage, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question", models.ErrEmptyInput)
	}
	history = c.window(history)

	standalone := question
	if c.condense && len(history) > 0 {
		rewritten, err := c.condenseQuestion(ctx, history, question)
		if err != nil {
			return nil, err
		}
		standalone = rewritten
	}

	passages, err := c.retriever.Retrieve(ctx, standalone)
	if err != nil {
		return nil, err
	}

	answer := &models.Answer{Question: question, Standalone: standalone, Sources: passages}
	if len(passages) == 0 && c.fallbackOnEmpty {
		log.Info().Str("question", question).Msg("No passage above threshold, answering with fallback")
		answer.Content = c.fallbackAnswer
		answer.Fallback = true
		return answer, nil
	}

	content, err := c.generator.Generate(ctx, c.messages(history, question, passages))
	if err != nil {
		return nil, err
	}
	answer.Content = content
	answer.Fallback = len(passages) == 0
	return answer, nil
}

func (c *Chain) window(history []llms.ChatMessage) []llms.ChatMessage {
	if c.historyTurns <= 0 || len(history) <= 2*c.historyTurns {
		return history
	}
	return history[len(history)-2*c.historyTurns:]
}

func (c *Chain) condenseQuestion(ctx context.Context, history []llms.ChatMessage, question string) (string, error) {
	transcript, err := FormatHistory(history)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(models.CondensePromptTemplate, transcript, question)
	rewritten, err := c.generator.Generate(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}
	log.Debug().Str("question", question).Str("standalone", rewritten).Msg("Condensed question")
	return rewritten, nil
}

func (c *Chain) messages(history []llms.ChatMessage, question string, passages []models.ScoredPassage) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(history)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, c.systemPrompt))
	for _, m := range history {
		msgs = append(msgs, llms.TextParts(m.GetType(), m.GetContent()))
	}
	prompt := fmt.Sprintf(models.QuestionPromptTemplate, BuildContext(passages), question)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
	return msgs
}

// BuildContext joins passage texts, best first.
func BuildContext(passages []models.ScoredPassage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	return strings.Join(texts, models.ContextSeparator)
}

// FormatHistory renders turns as "Human: ..." / "AI: ..." lines.
func FormatHistory(history []llms.ChatMessage) (string, error) {
	return llms.GetBufferString(history, "Human", "AI")
}
