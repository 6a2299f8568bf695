// Package metrics exposes the Prometheus scrape endpoint and the aggregated
// health endpoint.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"dashboard_sync/internal/core"
	"dashboard_sync/internal/infrastructure/health"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /metrics for Prometheus and /healthz for probes
type Server struct {
	port   int
	health *health.HealthManager
	logger core.ILogger
	srv    *http.Server
}

// NewServer creates a new metrics server
func NewServer(port int, hm *health.HealthManager, logger core.ILogger) *Server {
	return &Server{
		port:   port,
		health: hm,
		logger: logger.WithField("component", "metrics_server"),
	}
}

// Start starts the metrics HTTP server
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("Starting metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.health == nil {
		w.Write([]byte(`{"status":"ok"}`))
		return
	}

	healthy := s.health.IsHealthy()
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":    healthy,
		"components": s.health.GetStatus(),
	})
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping metrics server")
	return s.srv.Shutdown(ctx)
}
