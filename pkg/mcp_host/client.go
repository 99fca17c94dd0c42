package mcp_host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Host connects to one or more MCP servers, aggregates their tools and
// routes calls to whichever server exposes the requested tool.
type Host struct {
	servers map[string]*client.Client
	mu      sync.RWMutex
}

// ConnectOptions describes one MCP server to connect to.
type ConnectOptions struct {
	ServerName string
	// TransportType is "stdio", "sse", "httpstream" or "inprocess".
	TransportType string
	// Command, Args and Env launch a stdio server.
	Command string
	Args    []string
	Env     []string
	// URL is the SSE endpoint (".../sse") or the streamable HTTP endpoint (".../mcp").
	URL string
	// Server is used by the inprocess transport.
	Server *server.MCPServer
}

func NewHost() *Host {
	return &Host{servers: make(map[string]*client.Client)}
}

// Connect starts a client for opts and performs the MCP handshake.
func (h *Host) Connect(ctx context.Context, opts ConnectOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.servers[opts.ServerName]; exists {
		return fmt.Errorf("server with name '%s' already connected", opts.ServerName)
	}

	var (
		c     *client.Client
		err   error
		start = true
	)
	switch opts.TransportType {
	case "stdio":
		// The stdio constructor launches the subprocess itself.
		c, err = client.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
		start = false
	case "sse", "http-sse":
		c, err = client.NewSSEMCPClient(opts.URL)
	case "httpstream":
		c, err = client.NewStreamableHttpClient(opts.URL)
	case "inprocess":
		if opts.Server == nil {
			return errors.New("inprocess transport needs a server")
		}
		c, err = client.NewInProcessClient(opts.Server)
	default:
		return fmt.Errorf("unsupported transport type: '%s'", opts.TransportType)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", opts.TransportType, err)
	}
	if start {
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to start %s client: %w", opts.TransportType, err)
		}
	}

	initRequest := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "sentimatix-host",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}
	if _, err := c.Initialize(ctx, initRequest); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to initialize client: %w", err)
	}

	h.servers[opts.ServerName] = c
	return nil
}

// names returns connected server names in a stable order.
func (h *Host) names() []string {
	names := make([]string, 0, len(h.servers))
	for name := range h.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAllTools lists the tools of every server. A server that fails to answer
// is reported in the error map and skipped.
func (h *Host) GetAllTools(ctx context.Context) ([]mcp.Tool, map[string]error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var all []mcp.Tool
	errs := make(map[string]error)
	for _, name := range h.names() {
		res, err := h.servers[name].ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			errs[name] = err
			continue
		}
		all = append(all, res.Tools...)
	}
	return all, errs
}

// InvokeTool calls toolName on the first server (by name) that exposes it.
// A nil result with an empty error map means no server has the tool.
func (h *Host) InvokeTool(ctx context.Context, toolName string, args map[string]interface{}) (*mcp.CallToolResult, map[string]error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	errs := make(map[string]error)
	for _, name := range h.names() {
		c := h.servers[name]
		res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			errs[name] = fmt.Errorf("failed to list tools: %w", err)
			continue
		}
		for _, tool := range res.Tools {
			if tool.Name != toolName {
				continue
			}
			result, err := c.CallTool(ctx, mcp.CallToolRequest{
				Params: mcp.CallToolParams{Name: toolName, Arguments: args},
			})
			if err != nil {
				errs[name] = fmt.Errorf("failed to call tool: %w", err)
				break
			}
			return result, errs
		}
	}
	return nil, errs
}

// ResultText joins the text content blocks of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var out string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}

// CloseAll disconnects every server.
func (h *Host) CloseAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, c := range h.servers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.servers = make(map[string]*client.Client)
	return errors.Join(errs...)
}
