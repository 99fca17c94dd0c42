package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Rishav0123/sentimatix/internal/api"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/spf13/cobra"
)

var explainCmd = &cobra.Command{
	Use:   "explain [symbol] [start-date] [end-date]",
	Short: "Explain a price move over a date window",
	Long:  `Runs explain_price_change: prices, news sentiment, evidence and correlation for one symbol. Dates are YYYY-MM-DD.`,
	Args:  cobra.ExactArgs(3),
	RunE:  runExplain,
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence [query-text]",
	Short: "Retrieve news evidence semantically similar to a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvidence,
}

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Pearson correlation of two comma separated series",
	Example: `  sentimatix correlate --a 1.2,-0.5,2.1 --b 0.3,-0.1,0.4
  sentimatix correlate --symbol TCS --a 1.2,-0.5,2.1 --b 0.3,-0.1,0.4`,
	Args: cobra.NoArgs,
	RunE: runCorrelate,
}

var (
	evidenceSymbol string
	evidenceStart  string
	evidenceEnd    string
	evidenceTopK   int

	seriesA     string
	seriesB     string
	seriesAName string
	seriesBName string
	corrSymbol  string
)

func init() {
	evidenceCmd.Flags().StringVar(&evidenceSymbol, "symbol", "", "restrict to one symbol; empty searches all")
	evidenceCmd.Flags().StringVar(&evidenceStart, "start", "", "window start, YYYY-MM-DD")
	evidenceCmd.Flags().StringVar(&evidenceEnd, "end", "", "window end, YYYY-MM-DD")
	evidenceCmd.Flags().IntVar(&evidenceTopK, "top-k", 0, "maximum results (server default when 0)")
	_ = evidenceCmd.MarkFlagRequired("start")
	_ = evidenceCmd.MarkFlagRequired("end")

	correlateCmd.Flags().StringVar(&seriesA, "a", "", "first series, e.g. 1.2,-0.5,2.1 (price changes with --symbol)")
	correlateCmd.Flags().StringVar(&seriesB, "b", "", "second series (sentiment scores with --symbol)")
	correlateCmd.Flags().StringVar(&seriesAName, "a-name", "", "label of the first series")
	correlateCmd.Flags().StringVar(&seriesBName, "b-name", "", "label of the second series")
	correlateCmd.Flags().StringVar(&corrSymbol, "symbol", "", "switch to sentiment-vs-price analysis for this symbol")
	_ = correlateCmd.MarkFlagRequired("a")
	_ = correlateCmd.MarkFlagRequired("b")

	rootCmd.AddCommand(explainCmd, evidenceCmd, correlateCmd)
}

func explain(cmd *cobra.Command, symbol, start, end string) (*models.ExplanationResult, error) {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	var result models.ExplanationResult
	err := apiClient().PostJSON(ctx, "/explain", api.WindowRequest{Symbol: symbol, StartDate: start, EndDate: end}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	result, err := explain(cmd, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runEvidence(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	var out struct {
		Evidence []models.EvidenceItem `json:"evidence"`
		Count    int                   `json:"count"`
	}
	req := api.RAGQueryRequest{
		Symbol: evidenceSymbol, StartDate: evidenceStart, EndDate: evidenceEnd,
		QueryText: args[0], TopK: evidenceTopK,
	}
	if err := apiClient().PostJSON(ctx, "/rag/query", req, &out); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if out.Count == 0 {
		fmt.Fprintln(w, "No evidence above the similarity threshold.")
		return nil
	}
	for _, it := range out.Evidence {
		fmt.Fprintf(w, "%2d. [%s %.3f] %s (%s, %s)\n", it.Rank, it.MatchQuality, it.Similarity,
			it.Title, it.Source, it.PublishedAt.Format(models.DateLayout))
		if it.Summary != "" {
			fmt.Fprintf(w, "    %s\n", it.Summary)
		}
	}
	return nil
}

func runCorrelate(cmd *cobra.Command, _ []string) error {
	a, err := parseSeries(seriesA)
	if err != nil {
		return fmt.Errorf("--a: %w", err)
	}
	b, err := parseSeries(seriesB)
	if err != nil {
		return fmt.Errorf("--b: %w", err)
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	var result models.CorrelationResult
	req := api.CorrelationRequest{SeriesA: a, SeriesB: b, SeriesAName: seriesAName, SeriesBName: seriesBName, Symbol: corrSymbol}
	if err := apiClient().PostJSON(ctx, "/correlation", req, &result); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

// parseSeries reads "1.5, -2,3" into floats.
func parseSeries(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}
