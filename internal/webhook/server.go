package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/push"
)

// Server represents the webhook HTTP server.
type Server struct {
	config    Config
	processor Processor
	logger    *slog.Logger
	server    *http.Server

	inflight      sync.WaitGroup
	inflightCount atomic.Int64
}

// New creates a new webhook server instance. Zero config fields take their defaults.
func New(config Config, processor Processor, logger *slog.Logger) *Server {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}

	return &Server{
		config:    config,
		processor: processor,
		logger:    logger,
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: the response waits for every commit's command to finish.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && s.InFlight() > 0 {
				// Deliveries keep running detached; the caller drains them.
				s.logger.Warn("webhook server stopped with deliveries in flight", "in_flight", s.InFlight())
				return ctx.Err()
			}
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// InFlight reports how many deliveries are being processed.
func (s *Server) InFlight() int64 {
	return s.inflightCount.Load()
}

// Drain waits until every in-flight delivery has finished or ctx ends.
// It returns ctx.Err() when deliveries were still running.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler returns the routed handler without binding a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.With(s.verifySignature).Post(s.config.Path, s.handlePush)

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// verifySignature checks the signature header, buffers the body, authenticates
// it and hands the same bytes on to the next handler. Header faults are reported
// before the body is touched.
func (s *Server) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values := r.Header.Values(s.config.SignatureHeader)
		signature := ""
		if len(values) > 0 {
			signature = values[0]
		}
		digest, err := ParseSignature(signature, len(values) > 0)
		if err != nil {
			s.rejectSignature(w, r, err)
			return
		}

		body, err := s.readBody(r)
		if err != nil {
			s.respondError(w, StatusFor(err), err.Error())
			return
		}

		if err := VerifyDigest(body, digest, s.config.Secret); err != nil {
			s.rejectSignature(w, r, err)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rejectSignature(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("webhook signature verification failed",
		"path", r.URL.Path,
		"header", s.config.SignatureHeader,
		"error", err,
	)
	s.respondError(w, StatusFor(err), err.Error())
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		return nil, reject(http.StatusInternalServerError, ErrBodyUnreadable)
	}
	if int64(len(body)) > s.config.MaxBodySize {
		return nil, reject(http.StatusRequestEntityTooLarge, ErrBodyTooLarge)
	}
	return body, nil
}

// handlePush decodes an authenticated push and processes its commits.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, ErrBodyUnreadable.Error())
		return
	}

	ev, err := push.Decode(body)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, push.ErrSyntax) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("webhook payload rejected", "path", r.URL.Path, "error", err)
		s.respondError(w, status, err.Error())
		return
	}

	deliveryID := r.Header.Get(DeliveryHeader)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	s.logger.Info("push received",
		"delivery_id", deliveryID,
		"repository", ev.Repository.FullName,
		"commits", len(ev.Commits),
	)

	// A client hanging up must not abandon check runs that are already in progress.
	s.inflight.Add(1)
	s.inflightCount.Add(1)
	batch := func() *dispatch.BatchResult {
		defer func() {
			s.inflightCount.Add(-1)
			s.inflight.Done()
		}()
		return s.processor.Process(context.WithoutCancel(r.Context()), deliveryID, ev)
	}()

	if batch != nil {
		s.logger.Info("push processed",
			"delivery_id", deliveryID,
			"completed", batch.Count(dispatch.StageCompleted),
			"skipped", batch.Count(dispatch.StageSkipped),
			"create_failed", batch.Count(dispatch.StageCreateFailed),
			"execute_failed", batch.Count(dispatch.StageExecuteFailed),
			"update_failed", batch.Count(dispatch.StageUpdateFailed),
		)
	}

	s.respondJSON(w, http.StatusOK, MessageResponse{Message: SuccessMessage})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
