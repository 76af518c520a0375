package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-chat/internal/agent"
	"document-chat/internal/config"
	"document-chat/internal/metrics"
	"document-chat/internal/models"
	"document-chat/internal/session"
)

type stubService struct {
	createErr error
	chatErr   error
	lastChat  [2]string
}

func (s *stubService) CreateSession(context.Context) (*agent.SessionInfo, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &agent.SessionInfo{SessionID: "6b1f0b9e-2c9a-4d8e-9a57-3f0d2f1c9e11", AgentType: models.AgentType, AgentName: models.AgentName}, nil
}

func (s *stubService) Chat(_ context.Context, sessionID, message string) (*models.Answer, error) {
	s.lastChat = [2]string{sessionID, message}
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return &models.Answer{Question: message, Content: "La tarifa es $5."}, nil
}

func (s *stubService) Info() agent.Info {
	return agent.Info{AgentType: models.AgentType, AgentName: models.AgentName, Description: models.AgentDescription}
}

func (s *stubService) Health(context.Context) agent.Health {
	return agent.Health{Status: "up", Embedding: "ok", VectorStore: "exists", ActiveSessions: 2}
}

func newTestServer(svc Service) *Server {
	gin.SetMode(gin.TestMode)
	return New(&config.Default().Server, svc, nil, nil)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestCreateSession(t *testing.T) {
	w := do(t, newTestServer(&stubService{}), http.MethodPost, "/session", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[map[string]string](t, w)
	assert.Equal(t, "6b1f0b9e-2c9a-4d8e-9a57-3f0d2f1c9e11", got["session_id"])
	assert.Equal(t, "langchain", got["agent_type"])
	assert.Equal(t, models.AgentName, got["agent_name"])
}

func TestCreateSession_IndexMissing(t *testing.T) {
	w := do(t, newTestServer(&stubService{createErr: models.ErrIndexNotFound}), http.MethodPost, "/session", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	got := decode[errorResponse](t, w)
	assert.Equal(t, "not_found", got.Code)
	assert.Contains(t, got.Detail, "vector index not found")
}

func TestChat(t *testing.T) {
	svc := &stubService{}
	w := do(t, newTestServer(svc), http.MethodPost, "/chat", `{"session_id":"abc","message":"¿Cuál es la tarifa?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[ChatResponse](t, w)
	assert.Equal(t, "abc", got.SessionID)
	assert.Equal(t, "La tarifa es $5.", got.Response)
	assert.Equal(t, [2]string{"abc", "¿Cuál es la tarifa?"}, svc.lastChat)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"bad json", `{"session_id":`, nil, http.StatusBadRequest, "bad_request"},
		{"missing message", `{"session_id":"abc"}`, nil, http.StatusBadRequest, "bad_request"},
		{"unknown session", `{"session_id":"abc","message":"hola"}`, fmt.Errorf("%w: abc", models.ErrSessionNotFound), http.StatusNotFound, "not_found"},
		{"model down", `{"session_id":"abc","message":"hola"}`, fmt.Errorf("%w: model gemma3:1b", models.ErrServiceUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"deadline", `{"session_id":"abc","message":"hola"}`, context.DeadlineExceeded, http.StatusServiceUnavailable, "service_unavailable"},
		{"unexpected", `{"session_id":"abc","message":"hola"}`, fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(&stubService{chatErr: tt.err}), http.MethodPost, "/chat", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[errorResponse](t, w).Code)
		})
	}
}

func TestInfo(t *testing.T) {
	w := do(t, newTestServer(&stubService{}), http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[agent.Info](t, w)
	assert.Equal(t, models.AgentDescription, got.Description)
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(&stubService{}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "up", got["status"])
	assert.Equal(t, "ok", got["embedding"])
	assert.Equal(t, "exists", got["vector_store"])
	assert.Equal(t, 2.0, got["active_sessions"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&stubService{})
	do(t, s, http.MethodGet, "/info", "")
	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `document_chat_http_requests_total{method="GET",path="/info",status="200"} 1`)
}

func TestRun_ExpiryUpdatesActiveSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	cfg.SessionTTL = 20 * time.Millisecond
	cfg.SweepEvery = 10 * time.Millisecond

	store := session.NewStore()
	_, err := store.Create(nil)
	require.NoError(t, err)
	m := metrics.New()
	m.SessionCreated(store.Count())

	s := New(&cfg, &stubService{}, store, m)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		w := do(t, s, http.MethodGet, "/metrics", "")
		return strings.Contains(w.Body.String(), "\ndocument_chat_sessions_active 0\n")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, store.Count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}
