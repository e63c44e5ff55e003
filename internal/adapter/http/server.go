package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// ResultStore serves stored analysis results.
type ResultStore interface {
	Get(ctx context.Context, id string) (domain.AnalysisResult, error)
	List(ctx context.Context, limit int) ([]domain.AnalysisResult, error)
}

// Server exposes health, readiness, metrics and result lookup endpoints.
type Server struct {
	httpServer *http.Server
	store      ResultStore
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1/analyses routes. A nil store makes the analyses routes answer 503; a
// nil gatherer serves the default Prometheus registry.
func NewServer(addr string, ready sharedobs.ReadinessChecker, store ResultStore, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  store,
		logger: logger,
	}

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /v1/analyses", s.handleList)
	mux.HandleFunc("GET /v1/analyses/{id}", s.handleGet)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	results, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list analyses failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list analyses failed")
		return
	}
	if results == nil {
		results = []domain.AnalysisResult{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, results)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}
	id := r.PathValue("id")
	result, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrResultNotFound):
		writeError(w, http.StatusNotFound, "analysis "+id+" not found")
	case err != nil:
		s.logger.Error("get analysis failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get analysis failed")
	default:
		sharedobs.WriteJSON(w, http.StatusOK, result)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
