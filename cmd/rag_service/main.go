package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rishav0123/sentimatix/internal/api"
	"github.com/Rishav0123/sentimatix/internal/app"
	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/discovery/etcd"
	grpcserver "github.com/Rishav0123/sentimatix/pkg/grpc"
	httpserver "github.com/Rishav0123/sentimatix/pkg/http"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/gin-gonic/gin"
)

const serviceName = "rag_service"

func main() {
	// 1. Load configuration
	configPath := os.Getenv("SENTIMATIX_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New(serviceName, "", "")
	appLogger.Info(fmt.Sprintf("Starting %s %s (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Build market data, embeddings, vector store and the analysis tools
	stack, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to build service: %v", err))
	}
	defer func() {
		if err := stack.Close(); err != nil {
			appLogger.Error(fmt.Sprintf("Failed to close collaborators cleanly: %v", err))
		}
	}()

	registry, err := etcd.NewRegistry(cfg.Databases.Etcd, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create service registry: %v", err))
	}
	if registry != nil {
		defer registry.Close()
		stack.Checks["etcd"] = registry.HealthCheck
	}

	// 4. HTTP API
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(stack.Tools, stack.Retriever, stack.Checks, cfg.App.Version, appLogger)
	router := api.SetupRouter(handler, api.AuthMiddleware(api.NewAuthenticator(cfg.Auth), appLogger), appLogger)
	httpServer, err := httpserver.NewServer(cfg, router, httpserver.WithLogger(appLogger))
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create HTTP server: %v", err))
	}

	// 5. gRPC health endpoint, mirroring the dependency checks
	grpcServer, err := grpcserver.NewServer(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create gRPC server: %v", err))
	}
	go watchHealth(ctx, grpcServer, stack, appLogger)

	errCh := make(chan error, 2)
	go func() {
		appLogger.Info(fmt.Sprintf("HTTP server listening at %s", httpServer.Addr()))
		errCh <- httpServer.ListenAndServe()
	}()
	go func() {
		appLogger.Info(fmt.Sprintf("gRPC server listening at %s", cfg.Server.GRPCAddress))
		errCh <- grpcServer.ListenAndServe()
	}()

	// 6. Register with etcd when endpoints are configured
	if registry != nil {
		for kind, addr := range map[string]string{"http": cfg.Server.HTTPAddress, "grpc": cfg.Server.GRPCAddress} {
			if err := registry.Register(ctx, kind, addr); err != nil {
				appLogger.Error(fmt.Sprintf("Failed to register %s endpoint: %v", kind, err))
			}
		}
	}

	// 7. Graceful shutdown
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down servers...")
	case err := <-errCh:
		if err != nil {
			appLogger.Error(fmt.Sprintf("Server stopped: %v", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(fmt.Sprintf("HTTP shutdown failed: %v", err))
	}
	grpcServer.GracefulStop()
	appLogger.Info("Servers gracefully stopped")
}

// watchHealth mirrors the dependency checks into the gRPC health service.
func watchHealth(ctx context.Context, s *grpcserver.Server, stack *app.App, log *logger.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	last := true
	for {
		serving := true
		for name, check := range stack.Checks {
			checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := check(checkCtx)
			cancel()
			if err != nil {
				serving = false
				log.Warn(fmt.Sprintf("Health check %s failed: %v", name, err))
			}
		}
		if serving != last {
			log.Info(fmt.Sprintf("gRPC health serving=%t", serving))
		}
		last = serving
		s.SetServing("", serving)
		s.SetServing(serviceName, serving)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
