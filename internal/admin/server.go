// Package admin exposes the operational HTTP surface: health and metrics
// endpoints plus the distribution, simulation, and analytics reports that
// used to live behind ad-hoc debug hooks. It is deliberately separate from
// the core service contract the agent runtime consumes.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fciannella/ace-versioning/internal/analytics"
	"github.com/fciannella/ace-versioning/internal/assignment"
	"github.com/fciannella/ace-versioning/internal/observability"
)

// Config configures the admin server.
type Config struct {
	Host string
	Port int
}

// Server serves the admin API.
type Server struct {
	config     Config
	service    *assignment.Service
	aggregator *analytics.Aggregator
	logger     *observability.Logger

	httpServer *http.Server
}

// NewServer creates an admin server around the service and aggregator.
func NewServer(cfg Config, service *assignment.Service, aggregator *analytics.Aggregator, logger *observability.Logger) (*Server, error) {
	if service == nil || aggregator == nil {
		return nil, fmt.Errorf("service and aggregator are required")
	}
	return &Server{
		config:     cfg,
		service:    service,
		aggregator: aggregator,
		logger:     logger,
	}, nil
}

// Handler returns the admin mux. Split out so tests can drive it with
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/assignments/resolve", s.handleResolve)
	mux.HandleFunc("POST /v1/assignments/reassign", s.handleReassign)
	mux.HandleFunc("POST /v1/events", s.handleLogEvent)

	mux.HandleFunc("GET /v1/characters/{id}/distribution", s.handleDistribution)
	mux.HandleFunc("GET /v1/characters/{id}/simulate", s.handleSimulate)
	mux.HandleFunc("GET /v1/characters/{id}/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /v1/health", s.handleHealthReport)

	return mux
}

// Start begins serving and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info(ctx, "admin server listening", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("admin serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
