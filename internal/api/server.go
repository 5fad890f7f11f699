package api

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP server around the routed handlers.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(h *Handlers, health *HealthChecker, devMode bool) *Server {
	return &Server{handler: SetupRoutes(h, health, devMode)}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server, letting in-flight requests
// finish within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
