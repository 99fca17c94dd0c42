package models

// SentimentAggregate summarises sentiment over a news window.
// Average and Breakdown are nil when Total is zero: no data is not the same as a neutral average.
type SentimentAggregate struct {
	Symbol    string              `json:"symbol"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Total     int                 `json:"total_articles"`
	Average   *float64            `json:"avg_sentiment"`
	Positive  int                 `json:"positive_count"`
	Negative  int                 `json:"negative_count"`
	Neutral   int                 `json:"neutral_count"`
	Breakdown *SentimentBreakdown `json:"sentiment_breakdown"`
	// Truncated marks a window with more articles than the aggregation limit;
	// the figures then cover the newest ones only.
	Truncated bool `json:"truncated"`
}

// SentimentBreakdown is the label distribution in percent, rounded to one decimal.
type SentimentBreakdown struct {
	PositivePct float64 `json:"positive_pct"`
	NegativePct float64 `json:"negative_pct"`
	NeutralPct  float64 `json:"neutral_pct"`
}

// DailySentiment is the mean sentiment score of one publication day.
type DailySentiment struct {
	Date     string  `json:"date"`
	Average  float64 `json:"average"`
	Articles int     `json:"articles"`
}
