package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Rishav0123/sentimatix/internal/app"
	"github.com/Rishav0123/sentimatix/internal/mcp"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/Rishav0123/sentimatix/pkg/mcp_host"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the MCP tools",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

var callCmd = &cobra.Command{
	Use:     "call [tool-name]",
	Short:   "Invoke one MCP tool",
	Example: `  sentimatix call get_stock_summary --args '{"symbol":"TCS","period_days":7}'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCall,
}

var (
	mcpTransport string
	mcpURL       string
	mcpCommand   string
	callArgs     string
)

func init() {
	for _, c := range []*cobra.Command{toolsCmd, callCmd} {
		c.Flags().StringVar(&mcpTransport, "transport", "inprocess", "inprocess, stdio, sse or httpstream")
		c.Flags().StringVar(&mcpURL, "url", "http://localhost:8001/mcp", "server URL for sse and httpstream")
		c.Flags().StringVar(&mcpCommand, "command", "mcp_server", "server binary for stdio")
	}
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "tool arguments as a JSON object")
	rootCmd.AddCommand(toolsCmd, callCmd)
}

// connect opens an MCP session. With the inprocess transport the analysis
// stack is built from --config and served inside this process.
func connect(ctx context.Context) (*mcp_host.Host, func(), error) {
	host := mcp_host.NewHost()
	opts := mcp_host.ConnectOptions{ServerName: "sentimatix", TransportType: mcpTransport, URL: mcpURL}
	cleanup := func() { _ = host.CloseAll() }

	switch mcpTransport {
	case "inprocess":
		cfg, err := loadConfig()
		if err != nil {
			return nil, nil, err
		}
		stack, err := app.Build(ctx, cfg, logger.Discard())
		if err != nil {
			return nil, nil, err
		}
		opts.Server = mcp.NewServer(stack.Tools, cfg.App.Name, cfg.App.Version)
		cleanup = func() {
			_ = host.CloseAll()
			_ = stack.Close()
		}
	case "stdio":
		fields := strings.Fields(mcpCommand)
		if len(fields) == 0 {
			return nil, nil, fmt.Errorf("--command is empty")
		}
		opts.Command = fields[0]
		opts.Args = append(fields[1:], "--transport", "stdio", "--config", configPath)
	}

	if err := host.Connect(ctx, opts); err != nil {
		cleanup()
		return nil, nil, err
	}
	return host, cleanup, nil
}

func runTools(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	host, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tools, errs := host.GetAllTools(ctx)
	if err := serverError(errs); err != nil {
		return err
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	w := cmd.OutOrStdout()
	for _, t := range tools {
		fmt.Fprintf(w, "%-40s %s\n", t.Name, t.Description)
	}
	return nil
}

func runCall(cmd *cobra.Command, args []string) error {
	var arguments map[string]interface{}
	if err := json.Unmarshal([]byte(callArgs), &arguments); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	host, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, errs := host.InvokeTool(ctx, args[0], arguments)
	if err := serverError(errs); err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("tool %q not found", args[0])
	}
	text := mcp_host.ResultText(res)
	if res.IsError {
		return fmt.Errorf("%s", text)
	}
	var pretty interface{}
	if json.Unmarshal([]byte(text), &pretty) == nil {
		return printJSON(cmd.OutOrStdout(), pretty)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// serverError folds the per-server error map into one error.
func serverError(errs map[string]error) error {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	var joined []error
	for _, name := range names {
		joined = append(joined, fmt.Errorf("server %s: %w", name, errs[name]))
	}
	return errors.Join(joined...)
}
