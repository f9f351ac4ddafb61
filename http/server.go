// Package http exposes the scoring service over a small JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps the standard http.Server with the middleware chain applied.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	MaxRequestBody int64
	AllowedOrigins []string
}

// DefaultServerConfig returns the settings used when config.yaml leaves the
// http section empty.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		MaxRequestBody: 4 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer builds the server with all routes and middleware attached.
func NewServer(config ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	defaults := DefaultServerConfig()
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRequestBody == 0 {
		config.MaxRequestBody = defaults.MaxRequestBody
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = defaults.AllowedOrigins
	}

	mux := http.NewServeMux()
	handlers.Register(mux)

	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxRequestBody),
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks until the listener fails or the server is stopped.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
