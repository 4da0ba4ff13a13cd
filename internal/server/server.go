// Package server provides the HTTP surface of the dashboard: the JSON query
// API, the WebSocket observer endpoint, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/netwatch-labs/ddos-dashboard/internal/config"
	"github.com/netwatch-labs/ddos-dashboard/internal/hub"
	"github.com/netwatch-labs/ddos-dashboard/internal/stats"
	"github.com/netwatch-labs/ddos-dashboard/internal/version"
	"github.com/netwatch-labs/ddos-dashboard/pkg/detector"
)

const (
	defaultAnomalyLimit = 50
	defaultTopIPLimit   = 20
)

// Server is the HTTP server for the dashboard.
type Server struct {
	cfg        config.DashboardConfig
	store      *stats.Store
	hub        *hub.Hub
	source     *detector.Client
	log        *logrus.Logger
	httpServer *http.Server
}

// New creates the HTTP server and wires all routes.
func New(cfg config.DashboardConfig, store *stats.Store, h *hub.Hub, source *detector.Client, log *logrus.Logger) *Server {
	s := &Server{cfg: cfg, store: store, hub: h, source: source, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/api/anomalies", s.handleAnomalies).Methods(http.MethodGet)
	router.HandleFunc("/api/top-ips", s.handleTopIPs).Methods(http.MethodGet)
	router.HandleFunc("/ws", h.ServeWS)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server. It blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.HTTPAddr).Info("Dashboard listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"service": "ddos-dashboard",
		"version": version.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	detectionStatus := "ok"
	if err := s.source.Healthy(ctx); err != nil {
		detectionStatus = "unreachable"
	}
	writeJSON(w, map[string]string{
		"status":        "healthy",
		"version":       version.Version,
		"detection_api": detectionStatus,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Snapshot())
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultAnomalyLimit)
	writeJSON(w, map[string]interface{}{
		"anomalies": s.store.RecentAnomalies(limit),
		"total":     s.store.TotalAnomalies(),
	})
}

func (s *Server) handleTopIPs(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultTopIPLimit)
	writeJSON(w, map[string]interface{}{
		"top_ips": s.store.TopIPs(limit),
	})
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
