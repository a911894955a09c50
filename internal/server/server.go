// Package server constructs and runs the chatwire relay: the TCP chat
// listener, the HTTP front end with the WebSocket endpoint, and coordinated
// shutdown of both together with the registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server accepts client connections over TCP and WebSocket, spawns one
// Session per connection, and owns the Registry and its lifecycle.
type Server struct {
	cfg      Config
	registry *Registry

	listener net.Listener
	httpLn   net.Listener
	httpSrv  *http.Server

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
}

// NewServer builds a server from the given configuration.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:        cfg,
		registry:   NewRegistry(),
		shutdownCh: make(chan struct{}),
	}
	s.allowedOrigins, s.allowAllOrigins = normalizeOrigins(cfg.AllowedOrigins)
	return s
}

// Registry exposes the server's registry, mainly for tests and diagnostics.
func (s *Server) Registry() *Registry { return s.registry }

// RequestShutdown asks the server to begin a full shutdown. Safe to call more
// than once; sessions call it when a client sends a shutdown message.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Listen binds the TCP chat listener and the HTTP listener without serving
// yet, so callers can learn the bound addresses before clients connect.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.TCPAddr, err)
	}
	s.listener = ln

	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	s.httpLn = httpLn

	s.httpSrv = &http.Server{
		Handler:     s.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return nil
}

// TCPAddr returns the bound chat listener address. Valid after Listen.
func (s *Server) TCPAddr() net.Addr { return s.listener.Addr() }

// HTTPAddr returns the bound HTTP listener address. Valid after Listen.
func (s *Server) HTTPAddr() net.Addr { return s.httpLn.Addr() }

// Serve runs the accept loops until ctx is cancelled or a shutdown is
// requested, then tears everything down before returning. Listen must have
// been called.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop()
	})

	g.Go(func() error {
		log.Printf("HTTP server listening on %s", s.httpLn.Addr())
		if err := s.httpSrv.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-s.shutdownCh:
		}
		s.teardown()
		return nil
	})

	return g.Wait()
}

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) acceptLoop() error {
	log.Printf("Chat server listening on %s", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// A failing listener takes the process down, but only after the
			// teardown path has stopped every session.
			return fmt.Errorf("accept: %w", err)
		}

		sess := NewSession(NewNetConn(conn, s.cfg.MaxMessageSize), s.registry, s.RequestShutdown, s.cfg.RateLimit)
		go sess.Run()
	}
}

// teardown closes the listeners, stops every session through the registry,
// and drains the HTTP server.
func (s *Server) teardown() {
	log.Printf("Shutting down...")

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("Error closing chat listener: %v", err)
	}

	s.registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Printf("Shutdown complete")
}
