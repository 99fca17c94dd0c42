package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
)

// BarFetcher loads daily bars for a Yahoo symbol. The default calls the chart API.
type BarFetcher func(symbol string, start, end time.Time) ([]models.PriceBar, error)

// YahooSource serves prices from Yahoo Finance daily charts.
type YahooSource struct {
	suffix string
	fetch  BarFetcher
	log    *logger.Logger
	now    func() time.Time
}

// NewYahooSource appends suffix (e.g. ".NS") to bare symbols before lookup.
func NewYahooSource(suffix string, log *logger.Logger) *YahooSource {
	return &YahooSource{suffix: suffix, fetch: fetchChart, log: log, now: time.Now}
}

func fetchChart(symbol string, start, end time.Time) ([]models.PriceBar, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})
	var bars []models.PriceBar
	for iter.Next() {
		b := iter.Bar()
		bars = append(bars, models.PriceBar{
			Date:   time.Unix(int64(b.Timestamp), 0).UTC().Format(models.DateLayout),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Volume: int64(b.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

func (y *YahooSource) ticker(symbol string) (string, string) {
	display, suffixed := models.NormalizeSymbol(symbol)
	switch {
	case strings.HasPrefix(display, "^"):
		return display, display
	case y.suffix != "" && y.suffix != models.ExchangeSuffix:
		return display, display + y.suffix
	}
	return display, suffixed
}

func (y *YahooSource) bars(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.ExternalService("market.Yahoo", err)
	}
	// The chart API treats end as exclusive.
	bars, err := y.fetch(symbol, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, models.ExternalService("market.Yahoo", fmt.Errorf("chart %s: %w", symbol, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, models.ExternalService("market.Yahoo", err)
	}
	return SortBars(bars), nil
}

func (y *YahooSource) StockSummary(ctx context.Context, symbol string, periodDays int) (*models.StockSummary, error) {
	display, ticker := y.ticker(symbol)
	if display == "" {
		return nil, models.InvalidInput("market.StockSummary", "symbol is required")
	}
	periodDays = max(periodDays, 1)
	end := y.now().UTC()
	bars, err := y.bars(ctx, ticker, end.AddDate(0, 0, -periodDays), end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, models.ExternalService("market.StockSummary", fmt.Errorf("%w for %s", ErrNoData, ticker))
	}
	y.log.WithField("symbol", ticker).Debug(fmt.Sprintf("Loaded %d Yahoo bars", len(bars)))
	return Summarize(display, periodDays, bars), nil
}

func (y *YahooSource) HistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	display, ticker := y.ticker(symbol)
	if display == "" {
		return nil, models.InvalidInput("market.HistoricalPrices", "symbol is required")
	}
	if end.Before(start) {
		return nil, models.InvalidInput("market.HistoricalPrices", "start date is after end date")
	}
	bars, err := y.bars(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	return WithChanges(FilterRange(bars, start, end)), nil
}
