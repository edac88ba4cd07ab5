package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Server is the HTTP server around the router.
type Server struct {
	http   *http.Server
	cancel context.CancelFunc
}

// NewServer creates a server listening on addr.
func NewServer(addr string, cfg Config) *Server {
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		cancel: cancel,
	}
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops the server gracefully. Hijacked websocket streams are not
// tracked by net/http, so their request contexts are cancelled first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}
