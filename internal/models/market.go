package models

// PriceBar is one daily OHLCV bar. Date is YYYY-MM-DD.
type PriceBar struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        int64   `json:"volume"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// StockSummary condenses a window of bars into headline metrics.
type StockSummary struct {
	Symbol        string  `json:"symbol"`
	PeriodDays    int     `json:"period_days"`
	CurrentPrice  float64 `json:"current_price"`
	OpenPrice     float64 `json:"open_price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	AvgVolume     int64   `json:"avg_volume"`
	// Volatility is the population standard deviation of daily close-to-close returns, in percent.
	Volatility  float64 `json:"volatility"`
	LastUpdated string  `json:"last_updated"`
	DataPoints  int     `json:"data_points"`
}
