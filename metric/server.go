package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/groundlink/errors"
	"github.com/c360/groundlink/health"
)

// Server exposes the metrics registry and component health over HTTP.
type Server struct {
	port      int
	path      string
	registry  *Registry
	reporters []health.Reporter
	server    *http.Server
	mu        sync.Mutex // protects server field
}

// NewServer creates a metrics server for the provided registry. Health
// reporters are polled on each request to the health endpoint.
func NewServer(port int, path string, registry *Registry, reporters ...health.Reporter) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}

	return &Server{
		port:      port,
		path:      path,
		registry:  registry,
		reporters: reporters,
	}
}

// Start starts the metrics HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "check server state")
	}
	if s.registry == nil {
		return errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Server", "Start", "metrics registry not provided")
	}

	mux := http.NewServeMux()

	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		statuses := make([]health.Status, 0, len(s.reporters))
		for _, r := range s.reporters {
			statuses = append(statuses, r.Health())
		}
		overall := health.Aggregate("groundlink", statuses)

		w.Header().Set("Content-Type", "application/json")
		if !overall.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(overall)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The metrics server is an observability surface; its failure
			// must not take the client down.
			slog.Error("metrics server stopped", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown http server")
	}
	return nil
}
