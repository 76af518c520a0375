package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"document-chat/internal/agent"
	"document-chat/internal/config"
	"document-chat/internal/metrics"
	"document-chat/internal/models"
	"document-chat/internal/session"
)

// Service is what the HTTP layer needs from the agent.
type Service interface {
	CreateSession(ctx context.Context) (*agent.SessionInfo, error)
	Chat(ctx context.Context, sessionID, message string) (*models.Answer, error)
	Info() agent.Info
	Health(ctx context.Context) agent.Health
}

type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

type errorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type Server struct {
	cfg     *config.ServerConfig
	svc     Service
	store   *session.Store
	metrics *metrics.Metrics
	router  *gin.Engine
}

// New builds the router. store may be nil when no session expiry is wanted.
func New(cfg *config.ServerConfig, svc Service, store *session.Store, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		store:   store,
		metrics: m,
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery(), requestLogger(), m.Middleware())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.POST("/session", s.createSession)
	s.router.POST("/chat", s.chat)
	s.router.GET("/info", s.info)
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	if s.store != nil && s.cfg.SessionTTL > 0 {
		go s.store.Sweep(ctx, s.cfg.SessionTTL, s.cfg.SweepEvery, s.metrics.SessionsActive)
		log.Info().Dur("ttl", s.cfg.SessionTTL).Msg("Session expiry enabled")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) createSession(c *gin.Context) {
	info, err := s.svc.CreateSession(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error creating session")
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrServiceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		abort(c, status, err)
		return
	}
	if s.store != nil {
		s.metrics.SessionsActive(s.store.Count())
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("%w: %v", models.ErrEmptyInput, err))
		return
	}

	answer, err := s.svc.Chat(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("Error processing chat")
		abort(c, chatStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{SessionID: req.SessionID, Response: answer.Content})
}

func (s *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Info())
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Health(c.Request.Context()))
}

func chatStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrServiceUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrEmptyInput):
		return "bad_request"
	case errors.Is(err, models.ErrServiceUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "service_unavailable"
	default:
		return "internal_error"
	}
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, errorResponse{Code: errorCode(err), Detail: err.Error()})
}

// requestLogger logs one line per request on the global zerolog logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		evt := log.Info()
		if status >= http.StatusInternalServerError {
			evt = log.Error()
		} else if status >= http.StatusBadRequest {
			evt = log.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
