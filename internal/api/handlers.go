package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/Rishav0123/sentimatix/internal/mcp"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/gin-gonic/gin"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// healthTimeout bounds every dependency probe of /health.
const healthTimeout = 3 * time.Second

type Handler struct {
	tools   *mcp.Toolset
	rag     mcp.Retriever
	checks  map[string]HealthCheck
	version string
	started time.Time
	now     func() time.Time
	log     *logger.Logger
}

func NewHandler(tools *mcp.Toolset, rag mcp.Retriever, checks map[string]HealthCheck, version string, log *logger.Logger) *Handler {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &Handler{
		tools:   tools,
		rag:     rag,
		checks:  checks,
		version: version,
		started: time.Now().UTC(),
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// CallRequest is the body of POST /call.
type CallRequest struct {
	Name      string                 `json:"name" binding:"required"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CallResponse wraps every tool outcome.
type CallResponse struct {
	Success   bool        `json:"success"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type WindowRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

type RAGQueryRequest struct {
	Symbol    string `json:"symbol"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
	QueryText string `json:"query_text" binding:"required"`
	TopK      int    `json:"top_k" binding:"omitempty,min=1,max=50"`
}

type CorrelationRequest struct {
	SeriesA     []float64 `json:"series_a" binding:"required"`
	SeriesB     []float64 `json:"series_b" binding:"required"`
	SeriesAName string    `json:"series_a_name"`
	SeriesBName string    `json:"series_b_name"`
	// Symbol switches to sentiment-vs-price mode: series_a are price
	// changes, series_b sentiment scores.
	Symbol string `json:"symbol"`
}

// ToolInfo is one entry of GET /tools.
type ToolInfo struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Category    string                `json:"category"`
	InputSchema mcpgo.ToolInputSchema `json:"input_schema"`
}

// errorName is the wire name of an error kind.
func errorName(k models.ErrorKind) string {
	switch k {
	case models.KindInvalidInput:
		return "InvalidInputError"
	case models.KindAuthentication:
		return "AuthenticationError"
	default:
		return "ExternalServiceError"
	}
}

func errorBody(err error) gin.H {
	return gin.H{"error": errorName(models.KindOf(err)), "message": err.Error()}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, mcp.ErrUnknownTool) {
		return http.StatusNotFound
	}
	switch models.KindOf(err) {
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	requestLogger(c, h.log).WithError(models.ErrorInfoFrom(err, status)).Warn("Request failed")
	c.JSON(status, errorBody(err))
}

// bindJSON decodes the body, answering 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(models.InvalidInput("api.bind", "%v", err)))
		return false
	}
	return true
}

// Call handles POST /call: tool dispatch by name.
func (h *Handler) Call(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CallResponse{
			Error:     "invalid request body: " + err.Error(),
			ErrorKind: errorName(models.KindInvalidInput),
			Timestamp: h.now(),
		})
		return
	}

	result, err := h.tools.Call(c.Request.Context(), req.Name, mcp.Args(req.Arguments))
	if err != nil {
		status := statusFor(err)
		requestLogger(c, h.log).WithField("tool", req.Name).WithError(models.ErrorInfoFrom(err, status)).Warn("Tool call failed")
		c.JSON(status, CallResponse{
			Error:     err.Error(),
			ErrorKind: errorName(models.KindOf(err)),
			Timestamp: h.now(),
		})
		return
	}
	c.JSON(http.StatusOK, CallResponse{Success: true, Result: result, Timestamp: h.now()})
}

// ListTools handles GET /tools.
func (h *Handler) ListTools(c *gin.Context) {
	tools := h.tools.Tools()
	out := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolInfo{
			Name:        t.Spec.Name,
			Description: t.Spec.Description,
			Category:    t.Category,
			InputSchema: t.Spec.InputSchema,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"tools":      out,
		"count":      len(out),
		"categories": h.tools.Categories(),
	})
}

// Explain handles POST /explain.
func (h *Handler) Explain(c *gin.Context) {
	var req WindowRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.tools.Call(c.Request.Context(), "explain_price_change", mcp.Args{
		"symbol": req.Symbol, "start_date": req.StartDate, "end_date": req.EndDate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RAGQuery handles POST /rag/query.
func (h *Handler) RAGQuery(c *gin.Context) {
	var req RAGQueryRequest
	if !bindJSON(c, &req) {
		return
	}
	args := mcp.Args{
		"symbol": req.Symbol, "start_date": req.StartDate, "end_date": req.EndDate,
		"query_text": req.QueryText,
	}
	if req.TopK > 0 {
		args["top_k"] = req.TopK
	}
	result, err := h.tools.Call(c.Request.Context(), "get_rag_evidence", args)
	if err != nil {
		h.fail(c, err)
		return
	}
	items, _ := result.([]models.EvidenceItem)
	c.JSON(http.StatusOK, gin.H{
		"symbol":     req.Symbol,
		"query_text": req.QueryText,
		"evidence":   items,
		"count":      len(items),
		"timestamp":  h.now(),
	})
}

// Correlation handles POST /correlation.
func (h *Handler) Correlation(c *gin.Context) {
	var req CorrelationRequest
	if !bindJSON(c, &req) {
		return
	}
	var (
		result interface{}
		err    error
	)
	if req.Symbol != "" {
		result, err = h.tools.Call(c.Request.Context(), "calculate_sentiment_price_correlation", mcp.Args{
			"price_changes": req.SeriesA, "sentiment_scores": req.SeriesB, "symbol": req.Symbol,
		})
	} else {
		result, err = h.tools.Call(c.Request.Context(), "calculate_correlation", mcp.Args{
			"series_a": req.SeriesA, "series_b": req.SeriesB,
			"series_a_name": req.SeriesAName, "series_b_name": req.SeriesBName,
		})
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	now := h.now()
	body := gin.H{
		"server": gin.H{
			"version":          h.version,
			"started_at":       h.started,
			"uptime_seconds":   int64(now.Sub(h.started).Seconds()),
			"total_tool_calls": h.tools.Calls(),
		},
		"tools":     h.tools.Categories(),
		"timestamp": now,
	}
	if st, err := h.rag.Stats(c.Request.Context()); err != nil {
		body["rag_system"] = gin.H{"status": "error", "error": err.Error()}
	} else {
		body["rag_system"] = st
	}
	c.JSON(http.StatusOK, body)
}

// Health handles GET /health. It always answers 200; a failing dependency
// turns the overall status to "degraded".
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	components := map[string]string{"api_server": "healthy"}
	status := "healthy"

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			status = "degraded"
			continue
		}
		components[name] = "healthy"
	}

	if st, err := h.rag.Stats(ctx); err != nil {
		components["rag_system"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		components["rag_system"] = st.Status
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"version":    h.version,
		"components": components,
		"timestamp":  h.now(),
	})
}
