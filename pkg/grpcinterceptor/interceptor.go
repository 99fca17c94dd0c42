package grpcinterceptor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/circuitbreaker"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/Rishav0123/sentimatix/pkg/ratelimiter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RateLimitUnaryInterceptor answers ResourceExhausted once the limiter is spent.
func RateLimitUnaryInterceptor(limiter ratelimiter.RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !limiter.Allow() {
			return nil, status.Errorf(codes.ResourceExhausted, "request rejected due to rate limiting")
		}
		return handler(ctx, req)
	}
}

// serverFault reports whether a handler error should count against the breaker.
// Caller mistakes do not.
func serverFault(err error) bool {
	switch status.Code(err) {
	case codes.OK, codes.InvalidArgument, codes.NotFound, codes.Unauthenticated,
		codes.PermissionDenied, codes.AlreadyExists, codes.FailedPrecondition, codes.OutOfRange:
		return false
	}
	return true
}

// CircuitBreakUnaryInterceptor answers Unavailable while the breaker is open.
func CircuitBreakUnaryInterceptor(breaker circuitbreaker.CircuitBreaker) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		var (
			resp       interface{}
			handlerErr error
		)
		err := breaker.Execute(func() error {
			resp, handlerErr = handler(ctx, req)
			if handlerErr != nil && serverFault(handlerErr) {
				return handlerErr
			}
			return nil
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return nil, status.Errorf(codes.Unavailable, "service unavailable: circuit breaker is open")
		}
		return resp, handlerErr
	}
}

// LoggingUnaryInterceptor logs each call with its method, code and latency.
func LoggingUnaryInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithField("method", info.FullMethod).
			WithField("code", status.Code(err).String()).
			WithField("latency_ms", time.Since(start).Milliseconds())
		if err != nil {
			entry.Warn(fmt.Sprintf("gRPC call failed: %v", err))
		} else {
			entry.Debug("gRPC call served")
		}
		return resp, err
	}
}

// StatusFromError converts a domain error into a gRPC status error.
// Errors that already carry a status pass through unchanged.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch models.KindOf(err) {
	case models.KindInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case models.KindAuthentication:
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

// ErrorMappingUnaryInterceptor applies StatusFromError to handler errors.
// It must sit innermost so the breaker sees mapped codes.
func ErrorMappingUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		return resp, StatusFromError(err)
	}
}
