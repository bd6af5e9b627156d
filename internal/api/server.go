// Package api serves the optional ops endpoints: health, delivery history and a live event stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/events"
	"github.com/mattjoyce/smoked-tofu/internal/history"
)

// HistoryReader defines read access to recorded deliveries.
type HistoryReader interface {
	Get(ctx context.Context, deliveryID string) (*dispatch.BatchResult, error)
	Recent(ctx context.Context, limit int) ([]history.Summary, error)
}

// EventSource defines the live event feed behind GET /events.
type EventSource interface {
	Subscribe() (<-chan events.Event, func())
	Since(lastID int64) []events.Event
	Subscribers() int
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the bearer token required by every endpoint except /healthz.
	APIKey string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	history   HistoryReader
	events    EventSource
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history may be nil when the audit log is disabled.
func New(config Config, history HistoryReader, events EventSource, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		history:   history,
		events:    events,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// /events streams indefinitely, so there is no WriteTimeout.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler without binding a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/deliveries", s.handleListDeliveries)
		r.Get("/deliveries/{deliveryID}", s.handleGetDelivery)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
