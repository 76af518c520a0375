package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"document-chat/internal/metrics"
	"document-chat/internal/models"
	"document-chat/internal/session"
)

// IndexProbe tells whether the vector index is in place.
type IndexProbe interface {
	Exists(ctx context.Context) (bool, error)
}

// EmbeddingProbe checks the embedding backend.
type EmbeddingProbe interface {
	Ping(ctx context.Context) error
}

type SessionInfo struct {
	SessionID string `json:"session_id"`
	AgentType string `json:"agent_type"`
	AgentName string `json:"agent_name"`
}

type Info struct {
	AgentType   string `json:"agent_type"`
	AgentName   string `json:"agent_name"`
	Description string `json:"description"`
}

type Health struct {
	Status         string `json:"status"`
	Embedding      string `json:"embedding"`
	VectorStore    string `json:"vector_store"`
	ActiveSessions int    `json:"active_sessions"`
	Error          string `json:"error,omitempty"`
}

// Agent addresses chat turns to sessions. All sessions share one chain, the
// per-conversation state lives in each session's memory.
type Agent struct {
	chain    session.Chain
	index    IndexProbe
	embedder EmbeddingProbe
	store    *session.Store
	metrics  *metrics.Metrics
}

func New(chain session.Chain, index IndexProbe, embedder EmbeddingProbe, store *session.Store, m *metrics.Metrics) *Agent {
	if store == nil {
		store = session.NewStore()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Agent{
		chain:    chain,
		index:    index,
		embedder: embedder,
		store:    store,
		metrics:  m,
	}
}

func (a *Agent) Store() *session.Store {
	return a.store
}

// CreateSession starts a conversation. It fails with ErrIndexNotFound when
// there is nothing to retrieve from.
func (a *Agent) CreateSession(ctx context.Context) (*SessionInfo, error) {
	ok, err := a.index.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check vector index: %w", err)
	}
	if !ok {
		return nil, models.ErrIndexNotFound
	}

	s, err := a.store.Create(a.chain)
	if err != nil {
		return nil, err
	}
	a.metrics.SessionCreated(a.store.Count())

	log.Info().Str("session_id", s.ID).Msg("Created new session")
	return &SessionInfo{
		SessionID: s.ID,
		AgentType: models.AgentType,
		AgentName: models.AgentName,
	}, nil
}

// Chat runs one turn in the session identified by sessionID.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (*models.Answer, error) {
	s, err := a.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log.Info().Str("session_id", sessionID).Str("message", message).Msg("Processing message")
	answer, err := s.Ask(ctx, message)
	if err != nil {
		a.metrics.ChatTurn(metrics.OutcomeError, 0, time.Since(start))
		return nil, err
	}

	outcome := metrics.OutcomeAnswered
	if answer.Fallback {
		outcome = metrics.OutcomeFallback
	}
	a.metrics.ChatTurn(outcome, len(answer.Sources), time.Since(start))
	log.Info().
		Str("session_id", sessionID).
		Int("passages", len(answer.Sources)).
		Bool("fallback", answer.Fallback).
		Dur("elapsed", time.Since(start)).
		Str("response", truncate(answer.Content, 100)).
		Msg("Agent response")
	return answer, nil
}

func (a *Agent) Info() Info {
	return Info{
		AgentType:   models.AgentType,
		AgentName:   models.AgentName,
		Description: models.AgentDescription,
	}
}

// Health probes the embedding backend and the index concurrently. Probe
// failures are reported in the fields; status is "error" only when the
// probing itself could not run.
func (a *Agent) Health(ctx context.Context) Health {
	h := Health{Status: "up", ActiveSessions: a.store.Count()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.embedder.Ping(gctx); err != nil {
			h.Embedding = "error: " + err.Error()
			return nil
		}
		h.Embedding = "ok"
		return nil
	})
	g.Go(func() error {
		ok, err := a.index.Exists(gctx)
		switch {
		case err != nil:
			h.VectorStore = "error"
			return err
		case ok:
			h.VectorStore = "exists"
		default:
			h.VectorStore = "missing"
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Health check failed")
		h.Status = "error"
		h.Error = err.Error()
	}
	return h
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
