package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/facility-live/internal/connection"
	"github.com/rickgao/facility-live/internal/version"
)

// StatsSource reports connection statistics. *connection.Manager
// implements it.
type StatsSource interface {
	Stats() connection.ManagerStats
}

// Server exposes /healthz, /status and the metrics endpoint.
type Server struct {
	src         StatsSource
	gatherer    prometheus.Gatherer
	metricsPath string
	logger      *slog.Logger
	httpServer  *http.Server
}

// NewServer creates a status server listening on addr.
func NewServer(addr, metricsPath string, src StatsSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	s := &Server{
		src:         src,
		gatherer:    gatherer,
		metricsPath: metricsPath,
		logger:      logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router serving the status endpoints.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/healthz", s.health)
	router.GET("/status", s.status)
	if s.gatherer != nil {
		router.Handler(http.MethodGet, s.metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting status server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.src.Stats()

	health := struct {
		Status string           `json:"status"`
		State  connection.State `json:"state"`
	}{
		Status: "healthy",
		State:  stats.State,
	}

	code := http.StatusOK
	switch stats.State {
	case connection.StateConnected:
	case connection.StateConnecting, connection.StateReconnecting:
		health.Status = "degraded"
		code = http.StatusServiceUnavailable
	default:
		health.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, health)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.src.Stats()
	if stats.Topics == nil {
		stats.Topics = []string{}
	}

	writeJSON(w, http.StatusOK, struct {
		Version    version.Info            `json:"version"`
		Connection connection.ManagerStats `json:"connection"`
	}{
		Version:    version.Current(),
		Connection: stats,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
