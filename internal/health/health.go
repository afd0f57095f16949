// Package health provides the liveness, readiness and metrics endpoints.
//
// Docker and Kubernetes use these endpoints to monitor the daemon. /healthz
// returns 200 once the daemon is running, /readyz additionally reports the
// state of lazily loaded components, and /metrics serves Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server is a lightweight HTTP server for health and metrics.
type Server struct {
	port     int
	gatherer prometheus.Gatherer
	ready    atomic.Bool

	mu      sync.Mutex
	reports []report

	server *http.Server
}

type report struct {
	name  string
	state func() string
}

// New creates a new health server. Metrics are read from gatherer.
func New(port int, gatherer prometheus.Gatherer) *Server {
	return &Server{port: port, gatherer: gatherer}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Report adds a component whose state is shown by /readyz. It does not
// affect readiness.
func (s *Server) Report(name string, state func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report{name: name, state: state})
}

// Handler returns the health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, s.ready.Load(), nil)
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		components := make(map[string]string, len(s.reports))
		for _, rep := range s.reports {
			components[rep.name] = rep.state()
		}
		s.mu.Unlock()
		writeStatus(w, s.ready.Load(), components)
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func writeStatus(w http.ResponseWriter, ready bool, components map[string]string) {
	body := map[string]any{"status": "ok"}
	code := http.StatusOK
	if !ready {
		body["status"] = "not_ready"
		code = http.StatusServiceUnavailable
	}
	if components != nil {
		body["components"] = components
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Int("port", s.port).Msg("health server listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
