package main

import (
	"fmt"
	"sort"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"
)

var reportCmd = &cobra.Command{
	Use:   "report [symbol] [start-date] [end-date]",
	Short: "Write an explanation to an xlsx workbook",
	Args:  cobra.ExactArgs(3),
	RunE:  runReport,
}

var reportOut string

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "output", "o", "", "workbook path (default <symbol>_<start>_<end>.xlsx)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	result, err := explain(cmd, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	path := reportOut
	if path == "" {
		path = fmt.Sprintf("%s_%s_%s.xlsx", result.Symbol, args[1], args[2])
	}
	if err := writeReport(result, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
	return nil
}

// Sheet names of the report workbook.
const (
	sheetSummary  = "Summary"
	sheetPrices   = "Prices"
	sheetEvidence = "Evidence"
)

// writeReport lays an ExplanationResult out over three sheets.
func writeReport(r *models.ExplanationResult, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	for _, name := range []string{sheetPrices, sheetEvidence} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	rows := [][]interface{}{
		{"Symbol", r.Symbol},
		{"Start date", r.Period.StartDate},
		{"End date", r.Period.EndDate},
		{"Days", r.Period.Days},
		{"Generated at", r.GeneratedAt.Format("2006-01-02 15:04:05")},
	}
	if s := r.StockSummary; s != nil {
		rows = append(rows,
			[]interface{}{"Open price", s.OpenPrice},
			[]interface{}{"Current price", s.CurrentPrice},
			[]interface{}{"Change", s.Change},
			[]interface{}{"Change %", s.ChangePercent},
			[]interface{}{"High", s.High},
			[]interface{}{"Low", s.Low},
			[]interface{}{"Volatility %", s.Volatility},
		)
	}
	if agg := r.SentimentAggregate; agg != nil {
		rows = append(rows, []interface{}{"Articles", agg.Total})
		if agg.Average != nil {
			rows = append(rows, []interface{}{"Average sentiment", *agg.Average})
		} else {
			rows = append(rows, []interface{}{"Average sentiment", "no news"})
		}
		rows = append(rows, []interface{}{"Positive / Negative / Neutral",
			fmt.Sprintf("%d / %d / %d", agg.Positive, agg.Negative, agg.Neutral)})
	}
	if c := r.Correlation; c != nil {
		rows = append(rows,
			[]interface{}{"Correlation", c.Coefficient},
			[]interface{}{"Strength", string(c.Strength)},
			[]interface{}{"Interpretation", c.Interpretation},
		)
	}
	steps := make([]string, 0, len(r.Status))
	for step := range r.Status {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		status := r.Status[step]
		if msg, ok := r.Errors[step]; ok {
			status += ": " + msg
		}
		rows = append(rows, []interface{}{"Status " + step, status})
	}
	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}

	prices := [][]interface{}{{"Date", "Open", "High", "Low", "Close", "Volume", "Change", "Change %"}}
	for _, b := range r.HistoricalPrices {
		prices = append(prices, []interface{}{b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, b.Change, b.ChangePercent})
	}
	if err := writeRows(f, sheetPrices, prices); err != nil {
		return err
	}

	evidence := [][]interface{}{{"Rank", "Title", "Source", "Published", "Similarity", "Quality", "Sentiment", "URL"}}
	for _, it := range r.Evidence {
		evidence = append(evidence, []interface{}{
			it.Rank, it.Title, it.Source, it.PublishedAt.Format(models.DateLayout),
			it.Similarity, string(it.MatchQuality), string(it.Sentiment), it.URL,
		})
	}
	if err := writeRows(f, sheetEvidence, evidence); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
