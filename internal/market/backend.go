package market

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/circuitbreaker"
	httpclient "github.com/Rishav0123/sentimatix/pkg/http"
	"github.com/Rishav0123/sentimatix/pkg/logger"
)

// DefaultNewsMaxPages caps news paging when the config leaves it unset.
const DefaultNewsMaxPages = 50

// BackendClient talks to the price and news REST API.
type BackendClient struct {
	http     *httpclient.Client
	pageSize int
	maxPages int
	log      *logger.Logger
	now      func() time.Time
}

// backendBar is a price row as the backend serves it. Volume arrives as a float.
type backendBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type newsPage struct {
	Data []models.NewsArticle `json:"data"`
}

// NewBackendClient builds a client from cfg. breaker may be nil.
func NewBackendClient(cfg config.BackendConfig, breaker circuitbreaker.CircuitBreaker, log *logger.Logger) *BackendClient {
	maxPages := cfg.NewsMaxPages
	if maxPages <= 0 {
		maxPages = DefaultNewsMaxPages
	}
	return &BackendClient{
		http: httpclient.NewClient(httpclient.ClientOptions{
			BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
			BearerToken: cfg.APIKey,
			Timeout:     config.Duration(cfg.Timeout, 30*time.Second),
			Breaker:     breaker,
		}),
		pageSize: max(cfg.NewsPageSize, 1),
		maxPages: maxPages,
		log:      log,
		now:      time.Now,
	}
}

func (c *BackendClient) prices(ctx context.Context, symbol string, days int) ([]models.PriceBar, error) {
	var rows []backendBar
	path := "/stocks/prices/" + url.PathEscape(symbol)
	if err := c.http.GetJSON(ctx, path, map[string]string{"days": strconv.Itoa(max(days, 1))}, &rows); err != nil {
		return nil, err
	}
	bars := make([]models.PriceBar, 0, len(rows))
	for _, r := range rows {
		if len(r.Date) < len(models.DateLayout) {
			continue
		}
		bars = append(bars, models.PriceBar{
			Date:   r.Date[:len(models.DateLayout)],
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: int64(math.Round(r.Volume)),
		})
	}
	return SortBars(bars), nil
}

func (c *BackendClient) StockSummary(ctx context.Context, symbol string, periodDays int) (*models.StockSummary, error) {
	display, _ := models.NormalizeSymbol(symbol)
	if display == "" {
		return nil, models.InvalidInput("market.StockSummary", "symbol is required")
	}
	periodDays = max(periodDays, 1)
	bars, err := c.prices(ctx, display, periodDays)
	if err != nil {
		c.log.WithField("symbol", display).Error(fmt.Sprintf("Failed to fetch prices: %v", err))
		return nil, err
	}
	if len(bars) == 0 {
		return nil, models.ExternalService("market.StockSummary", fmt.Errorf("%w for %s", ErrNoData, display))
	}
	s := Summarize(display, periodDays, bars)
	c.log.WithField("symbol", display).Info(fmt.Sprintf("Retrieved stock summary: %.2f%% change", s.ChangePercent))
	return s, nil
}

// HistoricalPrices asks for enough trailing days to reach start, then trims to the window.
func (c *BackendClient) HistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	display, _ := models.NormalizeSymbol(symbol)
	if display == "" {
		return nil, models.InvalidInput("market.HistoricalPrices", "symbol is required")
	}
	if end.Before(start) {
		return nil, models.InvalidInput("market.HistoricalPrices", "start date is after end date")
	}
	days := DaysBetween(start, c.now()) + 1
	bars, err := c.prices(ctx, display, days)
	if err != nil {
		return nil, err
	}
	return WithChanges(FilterRange(bars, start, end)), nil
}

// News pages through /news, newest first, and keeps articles inside the window.
// The window bounds go along as start_date/end_date for backends that filter.
// Paging stops at a short page, once a page reaches back past start, once limit
// in-window articles are collected, or at the page cap.
func (c *BackendClient) News(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.NewsArticle, error) {
	display, _ := models.NormalizeSymbol(symbol)
	from := start.UTC().Format(models.DateLayout)
	var all []models.NewsArticle
	page := 1
	for ; page <= c.maxPages; page++ {
		query := map[string]string{
			"limit":      strconv.Itoa(c.pageSize),
			"page":       strconv.Itoa(page),
			"start_date": from,
			"end_date":   end.UTC().Format(models.DateLayout),
		}
		if display != "" {
			query["stock_symbol"] = display
		}
		var resp newsPage
		if err := c.http.GetJSON(ctx, "/news", query, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if len(resp.Data) < c.pageSize || reachedBefore(resp.Data, from) {
			break
		}
		if limit > 0 && len(WithinWindow(all, start, end, 0)) >= limit {
			break
		}
	}
	if page > c.maxPages {
		c.log.WithField("symbol", display).Warn(fmt.Sprintf("Stopped paging news after %d pages before reaching %s; the window may be incomplete", c.maxPages, from))
	}
	out := WithinWindow(all, start, end, limit)
	c.log.WithField("symbol", display).Debug(fmt.Sprintf("Fetched %d news articles, %d in window", len(all), len(out)))
	return out, nil
}

// reachedBefore reports whether a page holds an article published before day from.
func reachedBefore(articles []models.NewsArticle, from string) bool {
	for _, a := range articles {
		if !a.PublishedAt.IsZero() && a.PublishedAt.UTC().Format(models.DateLayout) < from {
			return true
		}
	}
	return false
}
