package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer registers every tool of ts on a new MCP server.
func NewServer(ts *Toolset, name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range ts.Tools() {
		toolName := t.Spec.Name
		s.AddTool(t.Spec, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return ToolResult(ts.Call(ctx, toolName, Args(request.GetArguments())))
		})
	}
	return s
}

// ToolResult renders a tool outcome as MCP content. Tool failures are reported
// in the result so the model can read them, not as protocol errors.
func ToolResult(result interface{}, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", models.KindOf(err), err)), nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// Serve runs s on transport ("stdio", "sse" or "httpstream") until ctx is
// cancelled or the transport fails. addr is ignored for stdio.
func Serve(ctx context.Context, s *server.MCPServer, transport, addr string, log *logger.Logger) error {
	errCh := make(chan error, 1)
	var shutdown func(context.Context) error

	switch transport {
	case "sse":
		sse := server.NewSSEServer(s)
		shutdown = sse.Shutdown
		log.Info(fmt.Sprintf("Starting MCP server with SSE transport on %s", addr))
		go func() { errCh <- sse.Start(addr) }()
	case "httpstream":
		hs := server.NewStreamableHTTPServer(s)
		shutdown = hs.Shutdown
		log.Info(fmt.Sprintf("Starting MCP server with StreamableHTTP transport on %s", addr))
		go func() { errCh <- hs.Start(addr) }()
	case "stdio", "":
		log.Info("Starting MCP server with STDIO transport")
		go func() { errCh <- server.ServeStdio(s) }()
	default:
		return fmt.Errorf("unknown MCP transport %q: use stdio, sse or httpstream", transport)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
		return nil
	}
}
