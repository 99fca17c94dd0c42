package models

import "time"

// Status values recorded per orchestrator sub-call.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Status map keys.
const (
	StepStockSummary       = "stock_summary"
	StepHistoricalPrices   = "historical_prices"
	StepSentimentAggregate = "sentiment_aggregate"
	StepRAGEvidence        = "rag_evidence"
	StepCorrelation        = "correlation"
)

// Period is the requested date range.
type Period struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

// ExplanationResult is the orchestrator's answer to "why did this symbol move?".
// Pointer fields are nil when their sub-call failed or was skipped and marshal as JSON null.
type ExplanationResult struct {
	Symbol             string              `json:"symbol"`
	Period             Period              `json:"period"`
	StockSummary       *StockSummary       `json:"stock_summary"`
	HistoricalPrices   []PriceBar          `json:"historical_prices"`
	SentimentAggregate *SentimentAggregate `json:"sentiment_aggregate"`
	Evidence           []EvidenceItem      `json:"rag_evidence"`
	Correlation        *CorrelationResult  `json:"correlation"`
	Status             map[string]string   `json:"status"`
	// Errors holds the failure message of each sub-call whose status is "error".
	Errors      map[string]string `json:"errors,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}
