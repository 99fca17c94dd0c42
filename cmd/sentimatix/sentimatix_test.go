package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Rishav0123/sentimatix/internal/api"
	"github.com/Rishav0123/sentimatix/internal/models"
	httpclient "github.com/Rishav0123/sentimatix/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func sampleResult() *models.ExplanationResult {
	avg := -0.42
	return &models.ExplanationResult{
		Symbol: "TCS",
		Period: models.Period{StartDate: "2024-01-01", EndDate: "2024-01-07", Days: 6},
		StockSummary: &models.StockSummary{
			Symbol: "TCS", OpenPrice: 3800, CurrentPrice: 3650, Change: -150, ChangePercent: -3.95,
		},
		HistoricalPrices: []models.PriceBar{
			{Date: "2024-01-01", Open: 3800, High: 3810, Low: 3780, Close: 3790, Volume: 1000},
			{Date: "2024-01-02", Open: 3790, High: 3795, Low: 3640, Close: 3650, Volume: 2000},
		},
		SentimentAggregate: &models.SentimentAggregate{Symbol: "TCS", Total: 3, Average: &avg, Negative: 3},
		Evidence: []models.EvidenceItem{{
			Rank: 1, ID: "n1", Title: "TCS misses estimates", Source: "Mint",
			PublishedAt: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
			Similarity:  0.87, MatchQuality: models.QualityExcellent, Sentiment: models.SentimentNegative,
		}},
		Status: map[string]string{
			models.StepStockSummary: models.StatusOK,
			models.StepRAGEvidence:  models.StatusOK,
			models.StepCorrelation:  models.StatusError,
		},
		Errors:      map[string]string{models.StepCorrelation: "not enough aligned points"},
		GeneratedAt: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
	}
}

func TestParseSeries(t *testing.T) {
	got, err := parseSeries("1.5, -2,3,")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2, 3}, got)

	_, err = parseSeries("1,x")
	assert.ErrorContains(t, err, `"x"`)
}

func TestDecodeArticles(t *testing.T) {
	one, err := decodeArticles([]byte(`{"id":"n1","title":"Deal","stock_symbol":"TCS"}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "TCS", one[0].Symbol)

	many, err := decodeArticles([]byte("\n[{\"id\":\"a\",\"title\":\"x\"},{\"id\":\"b\",\"title\":\"y\"}]"))
	require.NoError(t, err)
	assert.Len(t, many, 2)

	_, err = decodeArticles([]byte("  "))
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcs.xlsx")
	require.NoError(t, writeReport(sampleResult(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheetSummary, sheetPrices, sheetEvidence}, f.GetSheetList())

	summary, err := f.GetRows(sheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Symbol", "TCS"}, summary[0])
	var statusRows []string
	for _, row := range summary {
		if len(row) == 2 && strings.HasPrefix(row[0], "Status ") {
			statusRows = append(statusRows, row[0]+"="+row[1])
		}
	}
	assert.Equal(t, []string{
		"Status correlation=error: not enough aligned points",
		"Status rag_evidence=ok",
		"Status stock_summary=ok",
	}, statusRows)

	prices, err := f.GetRows(sheetPrices)
	require.NoError(t, err)
	assert.Len(t, prices, 3)
	assert.Equal(t, "2024-01-02", prices[2][0])

	evidence, err := f.GetRows(sheetEvidence)
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	assert.Equal(t, "TCS misses estimates", evidence[1][1])
	assert.Equal(t, string(models.QualityExcellent), evidence[1][5])
}

func TestExplainCallsAPI(t *testing.T) {
	var gotKey string
	var gotBody api.WindowRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/explain", r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sampleResult())
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "--api-key", "k1", "explain", "TCS", "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, api.WindowRequest{Symbol: "TCS", StartDate: "2024-01-01", EndDate: "2024-01-07"}, gotBody)

	var result models.ExplanationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "TCS", result.Symbol)
	assert.Equal(t, models.StatusError, result.Status[models.StepCorrelation])
}

func TestExplainReportsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"AuthenticationError","message":"missing X-API-Key header"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--server", srv.URL, "--api-key", "", "explain", "TCS", "2024-01-01", "2024-01-07")
	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "AuthenticationError")
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  apiKey: secret
backend:
  baseURL: http://127.0.0.1:1/api
embedding:
  provider: openai
  apiKey: sk-test
  dimension: 3
`), 0o600))
	return path
}

func TestToolsInProcess(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "tools", "--transport", "inprocess")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[0], "calculate_correlation"))
}

func TestCallInProcess(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "call", "calculate_correlation",
		"--transport", "inprocess", "--args", `{"series_a":[1,2,3,4],"series_b":[2,4,6,8]}`)
	require.NoError(t, err)

	var result models.CorrelationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.InDelta(t, 1.0, result.Coefficient, 1e-9)
	assert.Equal(t, models.StrengthVeryStrong, result.Strength)

	_, err = execute(t, "--config", writeConfig(t), "call", "no_such_tool", "--transport", "inprocess", "--args", "{}")
	assert.ErrorContains(t, err, "not found")
}
