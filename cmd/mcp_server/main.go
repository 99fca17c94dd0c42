package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rishav0123/sentimatix/internal/app"
	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/mcp"
	"github.com/Rishav0123/sentimatix/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config.yaml")
	transport := flag.String("transport", "", "stdio, sse or httpstream (overrides server.mcpTransport)")
	addr := flag.String("addr", "", "listen address for sse and httpstream (overrides server.mcpAddress)")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *transport != "" {
		cfg.Server.MCPTransport = *transport
	}
	if *addr != "" {
		cfg.Server.MCPAddress = *addr
	}

	// 2. Initialize logger. Over stdio, stdout carries the protocol, so logs go to stderr.
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	if cfg.Server.MCPTransport == "stdio" {
		logger.SetOutput(os.Stderr)
	}
	appLogger := logger.New("mcp_server", "", "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Build the analysis tools
	stack, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to build service: %v", err))
	}
	defer func() {
		if err := stack.Close(); err != nil {
			appLogger.Error(fmt.Sprintf("Failed to close collaborators cleanly: %v", err))
		}
	}()

	// 4. Serve until interrupted
	s := mcp.NewServer(stack.Tools, cfg.App.Name, cfg.App.Version)
	appLogger.Info(fmt.Sprintf("Registered %d tools", len(stack.Tools.Tools())))
	if err := mcp.Serve(ctx, s, cfg.Server.MCPTransport, cfg.Server.MCPAddress, appLogger); err != nil {
		appLogger.Error(fmt.Sprintf("MCP server stopped: %v", err))
	}
	appLogger.Info(fmt.Sprintf("MCP server exiting after %d tool calls", stack.Tools.Calls()))
}
