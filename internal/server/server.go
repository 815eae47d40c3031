package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownGrace bounds graceful shutdown
const ShutdownGrace = 10 * time.Second

// Server exposes the event handler for the configured mode
type Server struct {
	addr    string
	path    string
	handler http.Handler
	healthy func() bool
	server  *http.Server
	logger  zerolog.Logger
}

// New creates a server routing path to handler. healthy backs /healthz; nil
// always reports ok.
func New(addr, path string, handler http.Handler, healthy func() bool, logger zerolog.Logger) *Server {
	if healthy == nil {
		healthy = func() bool { return true }
	}

	s := &Server{
		addr:    addr,
		path:    path,
		handler: handler,
		healthy: healthy,
		logger:  logger.With().Str("component", "server").Logger(),
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Routes returns the HTTP routes
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.path == "/" {
		// Exact match so /healthz and unknown paths are not captured
		mux.Handle("/{$}", s.handler)
	} else {
		mux.Handle(s.path, s.handler)
	}
	return mux
}

// Start listens until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("path", s.path).
		Msg("HTTP server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "inference runtime unavailable")
		return
	}
	_, _ = io.WriteString(w, "ok")
}
