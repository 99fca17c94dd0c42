package grpc

import (
	"fmt"
	"net"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/pkg/circuitbreaker"
	"github.com/Rishav0123/sentimatix/pkg/grpcinterceptor"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/Rishav0123/sentimatix/pkg/ratelimiter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server wraps grpc.Server with the configured interceptors and the
// standard health service already registered.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	address    string
	log        *logger.Logger
}

type ServerOption func(*Server)

func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.address = addr
	}
}

func NewServer(cfg *config.AppConfig, log *logger.Logger, opts ...ServerOption) (*Server, error) {
	interceptors := []grpc.UnaryServerInterceptor{grpcinterceptor.LoggingUnaryInterceptor(log)}

	if cfg.Middleware.RateLimiter.Enabled {
		limiter, err := ratelimiter.FromConfig(cfg.Middleware.RateLimiter)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		log.Info(fmt.Sprintf("Enabling gRPC rate limiter with algorithm: %s", cfg.Middleware.RateLimiter.Algorithm))
		interceptors = append(interceptors, grpcinterceptor.RateLimitUnaryInterceptor(limiter))
	}
	if breaker := circuitbreaker.FromConfig(cfg.Middleware.CircuitBreaker, nil); breaker != nil {
		log.Info("Enabling gRPC circuit breaker")
		interceptors = append(interceptors, grpcinterceptor.CircuitBreakUnaryInterceptor(breaker))
	}

	interceptors = append(interceptors, grpcinterceptor.ErrorMappingUnaryInterceptor())

	srv := &Server{
		grpcServer: grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...)),
		health:     health.NewServer(),
		address:    cfg.Server.GRPCAddress,
		log:        log,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.address == "" {
		srv.address = ":9090"
	}

	healthpb.RegisterHealthServer(srv.grpcServer, srv.health)
	reflection.Register(srv.grpcServer)
	return srv, nil
}

// SetServing flips the health status of service; "" is the whole server.
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.grpcServer.RegisterService(desc, impl)
}

func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.log.Info(fmt.Sprintf("Starting gRPC server on %s", s.address))
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks every service not serving, then drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}
