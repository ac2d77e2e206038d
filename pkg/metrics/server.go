package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 10 * time.Second

// ReadinessFunc reports nil once the indexer is able to make progress.
type ReadinessFunc func() error

// Server is the operator endpoint of both binaries.
type Server struct {
	httpServer *http.Server
}

// Handler routes /metrics to gatherer, /health to a static liveness answer
// and /ready to ready. A nil ready always reports ready.
func Handler(gatherer prometheus.Gatherer, ready ReadinessFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	return mux
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body)) //nolint:errcheck // client may be gone
}

// NewServer serves Handler(gatherer, ready) on addr, e.g. ":9090".
func NewServer(addr string, gatherer prometheus.Gatherer, ready ReadinessFunc) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           Handler(gatherer, ready),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start listens in the background. The returned channel carries a listen
// failure, if any, and is closed when the server stops.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		err := s.httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server on %s: %w", s.httpServer.Addr, err)
		}
	}()
	return errCh
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx is
// done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
