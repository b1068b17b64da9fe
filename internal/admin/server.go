// Package admin serves the probes, status and metrics endpoints of a
// running supervisor.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
}

// New creates a new admin server. metrics may be nil.
func New(addr string, h *Handlers, metrics http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      Routes(h, metrics),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Routes builds the admin mux.
func Routes(h *Handlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", rateLimit(h.limiter, h.Readyz))
	mux.HandleFunc("GET /status", h.Status)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
