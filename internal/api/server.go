// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/alerting"
	"github.com/opsforge/pulse/internal/config"
	"github.com/opsforge/pulse/internal/metrics"
	"github.com/opsforge/pulse/internal/scaling"
	"github.com/opsforge/pulse/internal/storage"
)

const defaultRecentLimit = 20

// Server exposes the operational read API over HTTP.
type Server struct {
	logger     *zap.Logger
	history    *storage.MemoryStore
	decisions  *scaling.Log
	alerts     *alerting.MemoryLog
	router     chi.Router
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds the HTTP server for the configured port.
func NewServer(cfg *config.Config, logger *zap.Logger, history *storage.MemoryStore, decisions *scaling.Log, alerts *alerting.MemoryLog) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:    logger,
		history:   history,
		decisions: decisions,
		alerts:    alerts,
		startTime: time.Now(),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/snapshots/latest", s.handleLatestSnapshot)
		r.Get("/snapshots/recent", s.handleRecentSnapshots)
		r.Get("/decisions/latest", s.handleLatestDecision)
		r.Get("/decisions/recent", s.handleRecentDecisions)
		r.Get("/alerts/recent", s.handleRecentAlerts)
	})
	return r
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("api server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.history.Latest()
	if !ok {
		http.Error(w, "no snapshots collected yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRecentSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps := s.history.Recent(recentLimit(r))
	if snaps == nil {
		snaps = []*metrics.MetricSnapshot{}
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleLatestDecision(w http.ResponseWriter, _ *http.Request) {
	d, ok := s.decisions.Latest()
	if !ok {
		http.Error(w, "no decisions recorded yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRecentDecisions(w http.ResponseWriter, r *http.Request) {
	ds := s.decisions.Recent(recentLimit(r))
	if ds == nil {
		ds = []*scaling.Decision{}
	}
	s.writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	as := s.alerts.Recent(recentLimit(r))
	if as == nil {
		as = []alerting.Alert{}
	}
	s.writeJSON(w, http.StatusOK, as)
}

func recentLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultRecentLimit
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
