package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"botweave/internal/log"
)

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	addr     string
	port     int // Actual port after binding (useful when using :0)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8900" or "127.0.0.1:0").
	Addr string
	// Handler carries the route dependencies.
	Handler HandlerConfig
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Leave zero: SSE streams stay open indefinitely.
	WriteTimeout time.Duration
}

// NewServer creates a new API server.
// If Addr uses port 0 (e.g., "localhost:0" or ":0"), the OS will assign an
// available port. Use Port() after Start() to get the actual port.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandler(cfg.Handler)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	// Create listener first to get the actual port (important for :0)
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		handler:  handler,
		addr:     cfg.Addr,
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           handler.Routes(),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}, nil
}

// Start starts the HTTP server. It blocks until the server is stopped or fails.
func (s *Server) Start() error {
	log.Info(log.CatAPI, "starting http server", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server, waiting for in-flight requests
// up to the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatAPI, "stopping http server")
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
// This is useful when the server was configured with port 0 for auto-assignment.
func (s *Server) Port() int {
	return s.port
}
