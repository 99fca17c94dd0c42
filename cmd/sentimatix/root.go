package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	httpclient "github.com/Rishav0123/sentimatix/pkg/http"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	apiKey     string
	configPath string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sentimatix",
	Short: "Explain stock price moves from news sentiment and retrieved evidence",
	Long: `A command-line client for the sentimatix services. Analysis commands call
the HTTP API; tools and call talk MCP; publish feeds the ingest topic.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SENTIMATIX_URL", "http://localhost:8080"), "base URL of the HTTP API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SENTIMATIX_API_KEY"), "shared secret sent in the X-API-Key header")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file, used by in-process and Kafka commands")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// apiClient builds a client for the /api/v1 routes.
func apiClient() *httpclient.Client {
	return httpclient.NewClient(httpclient.ClientOptions{
		BaseURL: strings.TrimRight(serverURL, "/") + "/api/v1",
		Headers: map[string]string{"X-API-Key": apiKey},
		Timeout: timeout,
	})
}

func loadConfig() (*config.AppConfig, error) {
	return config.LoadConfig(configPath)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
