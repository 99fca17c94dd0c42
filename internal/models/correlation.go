package models

// CorrelationStrength labels the magnitude of a correlation coefficient.
type CorrelationStrength string

const (
	StrengthVeryStrong CorrelationStrength = "VERY_STRONG"
	StrengthStrong     CorrelationStrength = "STRONG"
	StrengthModerate   CorrelationStrength = "MODERATE"
	StrengthWeak       CorrelationStrength = "WEAK"
	StrengthVeryWeak   CorrelationStrength = "VERY_WEAK"
)

// CorrelationResult is a Pearson correlation with its qualitative reading.
type CorrelationResult struct {
	SeriesAName    string              `json:"series_a_name,omitempty"`
	SeriesBName    string              `json:"series_b_name,omitempty"`
	Coefficient    float64             `json:"correlation_coefficient"`
	RSquared       float64             `json:"r_squared"`
	Direction      string              `json:"direction"`
	Strength       CorrelationStrength `json:"strength"`
	DataPoints     int                 `json:"data_points"`
	Interpretation string              `json:"interpretation"`
	Recommendation string              `json:"recommendation"`
	Significance   string              `json:"statistical_significance"`
	// ActionableInsight and Divergences are set by sentiment-price analysis only.
	ActionableInsight string       `json:"actionable_insight,omitempty"`
	Divergences       []Divergence `json:"divergence_periods,omitempty"`
}

// Divergence marks a point where price and sentiment moved strongly in opposite directions.
type Divergence struct {
	Index       int     `json:"index"`
	Date        string  `json:"date,omitempty"`
	Type        string  `json:"type"`
	PriceChange float64 `json:"price_change"`
	Sentiment   float64 `json:"sentiment"`
}
