package agent

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"document-chat/internal/chromemdb"
	"document-chat/internal/chunker"
	"document-chat/internal/embedding"
	"document-chat/internal/ingest"
	"document-chat/internal/llmservice"
	"document-chat/internal/metrics"
	"document-chat/internal/models"
	"document-chat/internal/rag"
	"document-chat/internal/session"
)

const dims = 64

// bagOfWords hashes words into a fixed number of non-negative buckets. The
// last bucket is a constant bias so no vector is ever zero.
type bagOfWords struct {
	fail bool
}

func (b bagOfWords) vector(text string) []float32 {
	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%(dims-1)]++
	}
	v[dims-1] = 1
	return v
}

func (b bagOfWords) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if b.fail {
		return nil, errors.New("connection refused")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.vector(t)
	}
	return out, nil
}

func (b bagOfWords) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if b.fail {
		return nil, errors.New("connection refused")
	}
	return b.vector(text), nil
}

// quotingModel answers with the context section of the last prompt, so an
// answer can only mention what retrieval supplied.
type quotingModel struct {
	mu    sync.Mutex
	calls int
}

func (m *quotingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	prompt := messages[len(messages)-1].Parts[0].(llms.TextContent).Text
	ctxText := strings.TrimPrefix(strings.SplitN(prompt, "\n\nPregunta:", 2)[0], "Contexto:\n")
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Según los documentos: " + ctxText}}}, nil
}

func (m *quotingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type fixture struct {
	agent *Agent
	index *chromemdb.VectorDBManager
	model *quotingModel
}

func newFixture(t *testing.T, threshold float32, embedder bagOfWords) *fixture {
	t.Helper()
	ctx := context.Background()

	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "tarifas.html"), []byte(`<html><head><title>Tarifas</title></head>
<body><h1>Tarifas de cuentas</h1><p>La tarifa de mantenimiento es $5</p></body></html>`), 0o644))

	emb := embedding.NewClient(bagOfWords{}, "bow", dims, 0)
	index := chromemdb.NewVectorDBManager(chromemdb.Options{
		Path:           filepath.Join(t.TempDir(), "vector_store"),
		CollectionName: "documents",
		EmbeddingFunc:  emb.ChromemFunc(),
	})
	require.NoError(t, os.MkdirAll(index.Path(), 0o755))

	summary, err := ingest.NewPipeline(index, emb, chunker.New(500, 100)).Ingest(ctx, docs)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)

	queryEmb := embedding.NewClient(embedder, "bow", dims, 0)
	model := &quotingModel{}
	chain := rag.NewChain(
		rag.NewRetriever(queryEmb, index, 10, threshold),
		llmservice.NewClient(model, "quoting", 0, 0),
	)
	return &fixture{
		agent: New(chain, index, queryEmb, session.NewStore(), metrics.New()),
		index: index,
		model: model,
	}
}

func TestEndToEnd_ThresholdZeroFindsFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.0, bagOfWords{})

	info, err := f.agent.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AgentType, info.AgentType)
	assert.Equal(t, models.AgentName, info.AgentName)

	answer, err := f.agent.Chat(ctx, info.SessionID, "¿Cuál es la tarifa de mantenimiento?")
	require.NoError(t, err)
	require.NotEmpty(t, answer.Sources)
	assert.Contains(t, answer.Sources[0].Content, "$5")
	assert.Contains(t, answer.Content, "$5")
	assert.False(t, answer.Fallback)
	assert.Equal(t, 1, f.model.calls)
}

func TestEndToEnd_UnreachableThresholdFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1.01, bagOfWords{})

	info, err := f.agent.CreateSession(ctx)
	require.NoError(t, err)

	answer, err := f.agent.Chat(ctx, info.SessionID, "¿Cuál es la tarifa de mantenimiento?")
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
	assert.True(t, answer.Fallback)
	assert.Contains(t, answer.Content, "no tengo esa información")
	assert.NotContains(t, answer.Content, "$5")
	assert.Zero(t, f.model.calls)

	// the turn is still part of the conversation
	s, err := f.agent.Store().Get(info.SessionID)
	require.NoError(t, err)
	history, err := s.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestChat_UnknownSession(t *testing.T) {
	f := newFixture(t, 0.0, bagOfWords{})
	_, err := f.agent.Chat(context.Background(), "desconocida", "hola")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestChat_EmbeddingDownIsServiceUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.0, bagOfWords{fail: true})

	info, err := f.agent.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.agent.Chat(ctx, info.SessionID, "¿Cuál es la tarifa de mantenimiento?")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestCreateSession_MissingIndex(t *testing.T) {
	index := chromemdb.NewVectorDBManager(chromemdb.Options{
		Path:           filepath.Join(t.TempDir(), "missing"),
		CollectionName: "documents",
	})
	a := New(nil, index, embedding.NewClient(bagOfWords{}, "bow", dims, 0), nil, nil)

	_, err := a.CreateSession(context.Background())
	require.ErrorIs(t, err, models.ErrIndexNotFound)
	assert.Zero(t, a.Store().Count())
}

func TestInfo(t *testing.T) {
	a := New(nil, nil, nil, nil, nil)
	info := a.Info()
	assert.Equal(t, "langchain", info.AgentType)
	assert.Equal(t, models.AgentName, info.AgentName)
	assert.Equal(t, models.AgentDescription, info.Description)
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("up", func(t *testing.T) {
		f := newFixture(t, 0.0, bagOfWords{})
		_, err := f.agent.CreateSession(ctx)
		require.NoError(t, err)

		h := f.agent.Health(ctx)
		assert.Equal(t, "up", h.Status)
		assert.Equal(t, "ok", h.Embedding)
		assert.Equal(t, "exists", h.VectorStore)
		assert.Equal(t, 1, h.ActiveSessions)
	})

	t.Run("degraded", func(t *testing.T) {
		index := chromemdb.NewVectorDBManager(chromemdb.Options{Path: filepath.Join(t.TempDir(), "missing")})
		a := New(nil, index, embedding.NewClient(bagOfWords{fail: true}, "bow", dims, 0), nil, nil)

		h := a.Health(ctx)
		assert.Equal(t, "up", h.Status)
		assert.True(t, strings.HasPrefix(h.Embedding, "error: "), h.Embedding)
		assert.Equal(t, "missing", h.VectorStore)
		assert.Zero(t, h.ActiveSessions)
	})
}
