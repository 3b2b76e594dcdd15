// Package api exposes the back-fill engine over HTTP: health, status, a
// run trigger, store population stats, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hale-dev/chainfill/internal/backfill"
)

// BackfillService triggers back-fill runs.
type BackfillService interface {
	Run(ctx context.Context) (backfill.Summary, error)
	RunSession(ctx context.Context, sessionID string) (backfill.Summary, error)
	Reprocess(ctx context.Context, sessionID string) (backfill.Summary, error)
}

// StatsSource reports store metadata population counts.
type StatsSource interface {
	MetadataFieldStats(ctx context.Context) (map[string]int64, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	svc      BackfillService
	stats    StatsSource
	registry *prometheus.Registry

	mu          sync.Mutex
	lastSummary *backfill.Summary
}

func NewServer(port int, svc BackfillService, stats StatsSource, registry *prometheus.Registry) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		svc:      svc,
		stats:    stats,
		registry: registry,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/chainfill/status", s.status)
	router.Get("/api/v1/chainfill/stats", s.storeStats)
	router.Post("/api/v1/chainfill/run", s.run)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.lastSummary
	s.mu.Unlock()

	resp := map[string]any{
		"service": "chainfill",
		"status":  "ready",
	}
	if last != nil {
		resp["last_run"] = last
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// RunRequest selects what to back-fill. An empty body runs all eligible
// sessions.
type RunRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Reprocess bool   `json:"reprocess,omitempty"`
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
			return
		}
	}
	if req.Reprocess && req.SessionID == "" {
		http.Error(w, `{"error":"reprocess requires session_id"}`, http.StatusBadRequest)
		return
	}

	var (
		sum backfill.Summary
		err error
	)
	switch {
	case req.Reprocess:
		sum, err = s.svc.Reprocess(r.Context(), req.SessionID)
	case req.SessionID != "":
		sum, err = s.svc.RunSession(r.Context(), req.SessionID)
	default:
		sum, err = s.svc.Run(r.Context())
	}
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"backfill failed: %v"}`, err), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.lastSummary = &sum
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(sum)
}

func (s *Server) storeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.MetadataFieldStats(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"stats failed: %v"}`, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}
