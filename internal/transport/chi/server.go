// Package chi exposes the ingest HTTP surface: one document per request,
// driven through the persist pipeline, plus health and metrics endpoints.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/streamtag/streamtag/internal/domain"
	"github.com/streamtag/streamtag/internal/domain/activity"
	logpkg "github.com/streamtag/streamtag/internal/logger"
	"github.com/streamtag/streamtag/internal/metrics"
)

// maxDocumentSize bounds one ingested document.
const maxDocumentSize = 1 << 20 // 1MB

// Ingestor is the pipeline surface the server drives.
type Ingestor interface {
	Write(ctx context.Context, d activity.Datum) error
}

// HealthChecker probes store connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server handles ingest HTTP requests. The pipeline expects a single logical
// producer, so concurrent requests are serialized around Write.
type Server struct {
	pipe   Ingestor
	health HealthChecker
	logger *zap.Logger

	mu sync.Mutex // serializes pipeline writes
}

// NewServer creates an ingest server.
func NewServer(pipe Ingestor, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{pipe: pipe, health: health, logger: logger}
}

// Router assembles the HTTP routes and middleware chain.
func (s *Server) Router(apiKeys []string) chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Post("/v1/documents", s.handleIngest)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxDocumentSize {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	d, err := activity.New(body, r.URL.Query().Get("verb"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	err = s.pipe.Write(r.Context(), d)
	s.mu.Unlock()

	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, domain.ErrParse):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "pipeline is shut down")
	default:
		// Systemic failure: the stream is halted, not silently resumed.
		logpkg.FromContext(r.Context()).Error("ingest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "write failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
