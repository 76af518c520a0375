package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"

	"document-chat/internal/helper"
	"document-chat/internal/models"
)

// Chain answers one question given the prior turns.
type Chain interface {
	Run(ctx context.Context, history []llms.ChatMessage, question string) (*models.Answer, error)
}

// Session is one conversation: its memory and the chain that answers in it.
type Session struct {
	ID        string
	CreatedAt time.Time

	// mu serializes turns so memory keeps question/answer order
	mu         sync.Mutex
	lastActive atomic.Int64
	memory     *memory.ChatMessageHistory
	chain      Chain
}

func newSession(id string, chain Chain, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		memory:    memory.NewChatMessageHistory(),
		chain:     chain,
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// Ask runs one turn and appends the question and the answer to memory. A
// failed turn leaves memory unchanged.
func (s *Session) Ask(ctx context.Context, question string) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	history, err := s.memory.Messages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory: %w", err)
	}

	answer, err := s.chain.Run(ctx, history, question)
	if err != nil {
		return nil, err
	}

	if err := s.memory.AddUserMessage(ctx, answer.Question); err != nil {
		return nil, fmt.Errorf("failed to update memory: %w", err)
	}
	if err := s.memory.AddAIMessage(ctx, answer.Content); err != nil {
		return nil, fmt.Errorf("failed to update memory: %w", err)
	}
	return answer, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History(ctx context.Context) ([]llms.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, err := s.memory.Messages(ctx)
	if err != nil {
		return nil, err
	}
	return append([]llms.ChatMessage(nil), msgs...), nil
}

func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Store holds every live session of the process.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session with a random id.
func (st *Store) Create(chain Chain) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s := newSession(id, chain, time.Now())

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; ok {
		return nil, fmt.Errorf("session id collision: %s", id)
	}
	st.sessions[id] = s
	log.Debug().Str("session_id", id).Int("active", len(st.sessions)).Msg("Created session")
	return s, nil
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return s, nil
}

func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	return ok
}

func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Expire removes sessions idle for longer than ttl and returns how many were
// removed. A non-positive ttl removes nothing.
func (st *Store) Expire(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if now.Sub(s.LastActive()) > ttl {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("expired", removed).Int("active", len(st.sessions)).Msg("Expired idle sessions")
	}
	return removed
}

// Sweep calls Expire every interval until ctx is done. onExpired, if set, gets
// the number of sessions left after a sweep that removed any.
func (st *Store) Sweep(ctx context.Context, ttl, interval time.Duration, onExpired func(active int)) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if st.Expire(now, ttl) > 0 && onExpired != nil {
				onExpired(st.Count())
			}
		}
	}
}
