package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/mcp"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/sentiment"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testKey = "dev-key-12345"

type fakeExplainer struct{ calls int }

func (f *fakeExplainer) Explain(_ context.Context, symbol, start, end string) (*models.ExplanationResult, error) {
	f.calls++
	return &models.ExplanationResult{
		Symbol:   symbol,
		Period:   models.Period{StartDate: start, EndDate: end, Days: 6},
		Evidence: []models.EvidenceItem{},
		Status: map[string]string{
			models.StepStockSummary:       models.StatusError,
			models.StepSentimentAggregate: models.StatusOK,
		},
	}, nil
}

type fakePrices struct{ err error }

func (f fakePrices) StockSummary(_ context.Context, symbol string, days int) (*models.StockSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.StockSummary{Symbol: symbol, PeriodDays: days}, nil
}

func (f fakePrices) HistoricalPrices(context.Context, string, time.Time, time.Time) ([]models.PriceBar, error) {
	return nil, f.err
}

type fakeNews struct{}

func (fakeNews) Fetch(context.Context, string, time.Time, time.Time) ([]models.NewsArticle, error) {
	return nil, nil
}

func (fakeNews) FetchWindow(context.Context, string, time.Time, time.Time) (sentiment.Window, error) {
	return sentiment.Window{}, nil
}

type fakeRAG struct{ q models.EvidenceQuery }

func (f *fakeRAG) Retrieve(_ context.Context, q models.EvidenceQuery) ([]models.EvidenceItem, error) {
	f.q = q
	return []models.EvidenceItem{{Rank: 1, ID: "n1", Similarity: 0.9, MatchQuality: models.QualityExcellent}}, nil
}

func (f *fakeRAG) Stats(context.Context) (models.RAGStats, error) {
	return models.RAGStats{Status: "operational", Backend: "memory", TotalEmbeddings: 1}, nil
}

type fixture struct {
	router    *gin.Engine
	explainer *fakeExplainer
	rag       *fakeRAG
	tools     *mcp.Toolset
}

func newFixture(t *testing.T, auth config.AuthConfig, prices fakePrices, checks map[string]HealthCheck) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{explainer: &fakeExplainer{}, rag: &fakeRAG{}}
	f.tools = mcp.NewToolset(f.explainer, prices, fakeNews{}, f.rag, logger.Discard())
	h := NewHandler(f.tools, f.rag, checks, "test", logger.Discard())
	f.router = SetupRouter(h, AuthMiddleware(NewAuthenticator(auth), logger.Discard()), logger.Discard())
	return f
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, config.AuthConfig{APIKey: testKey}, fakePrices{}, nil)
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func authed() map[string]string { return map[string]string{"X-API-Key": testKey} }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAuthRejectsBeforeWork(t *testing.T) {
	f := defaultFixture(t)
	body := WindowRequest{Symbol: "TCS", StartDate: "2024-01-01", EndDate: "2024-01-07"}

	for name, headers := range map[string]map[string]string{
		"missing": nil,
		"wrong":   {"X-API-Key": "nope"},
	} {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/explain", body, headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "AuthenticationError", decode(t, w)["error"])
		})
	}
	assert.Zero(t, f.explainer.calls)

	w := f.do(t, http.MethodPost, "/api/v1/explain", body, authed())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.explainer.calls)
}

func TestAuthAcceptsHashedKeyAndBearer(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, config.AuthConfig{APIKeyHash: string(hash), JwtSecret: "jwt-secret"}, fakePrices{}, nil)

	w := f.do(t, http.MethodGet, "/api/v1/tools", nil, map[string]string{"X-API-Key": "hashed-secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	sign := func(secret string, exp time.Time) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "analyst", "exp": exp.Unix()}).SignedString([]byte(secret))
		require.NoError(t, err)
		return "Bearer " + s
	}
	w = f.do(t, http.MethodGet, "/api/v1/tools", nil, map[string]string{"Authorization": sign("jwt-secret", time.Now().Add(time.Hour))})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/tools", nil, map[string]string{"Authorization": sign("other", time.Now().Add(time.Hour))})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/tools", nil, map[string]string{"Authorization": sign("jwt-secret", time.Now().Add(-time.Hour))})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthIsPublicAndReportsComponents(t *testing.T) {
	f := newFixture(t, config.AuthConfig{APIKey: testKey}, fakePrices{}, map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
		"mysql": func(context.Context) error { return errors.New("connection refused") },
	})

	w := f.do(t, http.MethodGet, "/api/v1/health", nil, map[string]string{"X-Request-ID": "trace-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-1", w.Header().Get(RequestIDHeader))

	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "healthy", components["redis"])
	assert.Equal(t, "unhealthy: connection refused", components["mysql"])
	assert.Equal(t, "operational", components["rag_system"])
}

func TestRequestIDIsMinted(t *testing.T) {
	f := defaultFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestListTools(t *testing.T) {
	f := defaultFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/tools", nil, authed())
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.EqualValues(t, 9, body["count"])
	tools := body["tools"].([]interface{})
	first := tools[0].(map[string]interface{})
	assert.Equal(t, "explain_price_change", first["name"])
	assert.Equal(t, "orchestrator", first["category"])
	assert.NotNil(t, first["input_schema"])
}

func TestCallDispatchAndErrorMapping(t *testing.T) {
	upstream := models.ExternalService("market.StockSummary", errors.New("502 from backend"))
	f := newFixture(t, config.AuthConfig{APIKey: testKey}, fakePrices{err: upstream}, nil)

	tests := []struct {
		name   string
		req    CallRequest
		status int
		kind   string
	}{
		{"unknown tool", CallRequest{Name: "drop_tables"}, http.StatusNotFound, "ExternalServiceError"},
		{"invalid input", CallRequest{Name: "calculate_correlation", Arguments: map[string]interface{}{"series_a": []float64{1, 2}, "series_b": []float64{1}}}, http.StatusBadRequest, "InvalidInputError"},
		{"upstream failure", CallRequest{Name: "get_stock_summary", Arguments: map[string]interface{}{"symbol": "TCS"}}, http.StatusBadGateway, "ExternalServiceError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/call", tt.req, authed())
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.kind, body["error_kind"])
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}

	w := f.do(t, http.MethodPost, "/api/v1/call", CallRequest{Name: "get_rag_stats"}, authed())
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "operational", body["result"].(map[string]interface{})["rag_system"])

	w = f.do(t, http.MethodPost, "/api/v1/call", map[string]string{}, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExplainEndpoint(t *testing.T) {
	f := defaultFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/explain", WindowRequest{Symbol: "TCS", StartDate: "2024-01-01", EndDate: "2024-01-07"}, authed())
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "TCS", body["symbol"])
	assert.Nil(t, body["stock_summary"])
	assert.Equal(t, []interface{}{}, body["rag_evidence"])
	assert.Equal(t, "error", body["status"].(map[string]interface{})["stock_summary"])

	w = f.do(t, http.MethodPost, "/api/v1/explain", map[string]string{"symbol": "TCS"}, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidInputError", decode(t, w)["error"])
}

func TestRAGQueryEndpoint(t *testing.T) {
	f := defaultFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/rag/query", RAGQueryRequest{
		Symbol: "TCS", StartDate: "2024-01-01", EndDate: "2024-01-07", QueryText: "why did it fall", TopK: 3,
	}, authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
	assert.Equal(t, 3, f.rag.q.TopK)
	assert.Equal(t, "why did it fall", f.rag.q.QueryText)

	w = f.do(t, http.MethodPost, "/api/v1/rag/query", RAGQueryRequest{StartDate: "2024-01-07", EndDate: "2024-01-01", QueryText: "x"}, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCorrelationEndpoint(t *testing.T) {
	f := defaultFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/correlation", CorrelationRequest{
		SeriesA: []float64{1, 2, 3, 4}, SeriesB: []float64{2, 4, 6, 8}, SeriesAName: "price", SeriesBName: "sentiment",
	}, authed())
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.InDelta(t, 1.0, body["correlation_coefficient"], 1e-9)

	w = f.do(t, http.MethodPost, "/api/v1/correlation", CorrelationRequest{
		SeriesA: []float64{1, 1, 1}, SeriesB: []float64{1, 2, 3},
	}, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/correlation", CorrelationRequest{
		SeriesA: []float64{-2, 1, 3}, SeriesB: []float64{2, 1, -3}, Symbol: "TCS",
	}, authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["series_a_name"], "TCS")
}

func TestStatsCountsToolCalls(t *testing.T) {
	f := defaultFixture(t)
	f.do(t, http.MethodPost, "/api/v1/call", CallRequest{Name: "get_rag_stats"}, authed())
	f.do(t, http.MethodPost, "/api/v1/explain", WindowRequest{Symbol: "TCS", StartDate: "2024-01-01", EndDate: "2024-01-07"}, authed())

	w := f.do(t, http.MethodGet, "/api/v1/stats", nil, authed())
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["server"].(map[string]interface{})["total_tool_calls"])
	assert.Equal(t, "memory", body["rag_system"].(map[string]interface{})["backend"])
}
