package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/pkg/circuitbreaker"
	"github.com/Rishav0123/sentimatix/pkg/httpmiddleware"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/Rishav0123/sentimatix/pkg/ratelimiter"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Server wraps http.Server, putting the configured rate limiter and
// circuit breaker in front of the application handler.
type Server struct {
	httpServer *http.Server
	breaker    circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

type ServerOption func(*Server)

func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer builds a server for handler. Rate limits apply per caller,
// keyed by the auth header and falling back to the client IP.
func NewServer(cfg *config.AppConfig, handler http.Handler, opts ...ServerOption) (*Server, error) {
	srv := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddress,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = ":8080"
	}

	var middlewares []Middleware
	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		factory, err := ratelimiter.Factory(rl)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		limiters, err := ratelimiter.NewPerKey(factory, ratelimiter.DefaultMaxKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		header := cfg.Auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		srv.log.Info(fmt.Sprintf("Enabling rate limiter middleware with algorithm: %s", rl.Algorithm))
		middlewares = append(middlewares, httpmiddleware.RateLimitPerKey(limiters, httpmiddleware.HeaderOrIP(header)))
	}

	srv.breaker = circuitbreaker.FromConfig(cfg.Middleware.CircuitBreaker, func(from, to circuitbreaker.State) {
		srv.log.WithField("from", from.String()).WithField("to", to.String()).Warn("HTTP circuit breaker changed state")
	})
	if srv.breaker != nil {
		srv.log.Info("Enabling circuit breaker middleware")
		middlewares = append(middlewares, httpmiddleware.CircuitBreak(srv.breaker))
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	srv.httpServer.Handler = handler
	return srv, nil
}

func (s *Server) Addr() string { return s.httpServer.Addr }

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// BreakerState reports "disabled" when no breaker is configured.
func (s *Server) BreakerState() string {
	if s.breaker == nil {
		return "disabled"
	}
	return s.breaker.State().String()
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.log.Info(fmt.Sprintf("Starting HTTP server on %s", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
