package market

import (
	"context"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository reads and writes prices and news in MySQL.
type Repository struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewRepository(db *gorm.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, log: log, now: time.Now}
}

func (r *Repository) bars(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	var rows []models.StockPrice
	err := r.db.WithContext(ctx).
		Where("symbol IN ?", models.SymbolVariants(symbol)).
		Where("date BETWEEN ? AND ?", start.UTC().Format(models.DateLayout), end.UTC().Format(models.DateLayout)).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, models.ExternalService("market.Repository", err)
	}
	bars := make([]models.PriceBar, 0, len(rows))
	for _, p := range rows {
		bars = append(bars, models.PriceBar{
			Date:   p.Date.UTC().Format(models.DateLayout),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}
	return SortBars(bars), nil
}

func (r *Repository) StockSummary(ctx context.Context, symbol string, periodDays int) (*models.StockSummary, error) {
	display, _ := models.NormalizeSymbol(symbol)
	if display == "" {
		return nil, models.InvalidInput("market.StockSummary", "symbol is required")
	}
	periodDays = max(periodDays, 1)
	end := r.now().UTC()
	bars, err := r.bars(ctx, display, end.AddDate(0, 0, -periodDays), end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, models.ExternalService("market.StockSummary", fmt.Errorf("%w for %s", ErrNoData, display))
	}
	return Summarize(display, periodDays, bars), nil
}

func (r *Repository) HistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	display, _ := models.NormalizeSymbol(symbol)
	if display == "" {
		return nil, models.InvalidInput("market.HistoricalPrices", "symbol is required")
	}
	if end.Before(start) {
		return nil, models.InvalidInput("market.HistoricalPrices", "start date is after end date")
	}
	bars, err := r.bars(ctx, display, start, end)
	if err != nil {
		return nil, err
	}
	return WithChanges(bars), nil
}

func (r *Repository) News(ctx context.Context, symbol string, start, end time.Time, limit int) ([]models.NewsArticle, error) {
	q := r.db.WithContext(ctx).
		Where("published_at >= ? AND published_at < ?", dayStart(start), dayStart(end).AddDate(0, 0, 1)).
		Order("published_at DESC")
	if variants := models.SymbolVariants(symbol); len(variants) > 0 {
		q = q.Where("symbol IN ?", variants)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.NewsRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, models.ExternalService("market.Repository", err)
	}
	out := make([]models.NewsArticle, len(rows))
	for i, row := range rows {
		out[i] = row.ToArticle()
	}
	return out, nil
}

// SaveArticles upserts news rows by id.
func (r *Repository) SaveArticles(ctx context.Context, articles []models.NewsArticle) error {
	if len(articles) == 0 {
		return nil
	}
	rows := make([]models.NewsRow, len(articles))
	for i, a := range articles {
		rows[i] = models.NewsRowFromArticle(a)
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(rows, 100).Error
	return models.ExternalService("market.SaveArticles", err)
}

// SavePrices upserts bars for symbol on (symbol, date).
func (r *Repository) SavePrices(ctx context.Context, symbol string, bars []models.PriceBar) error {
	display, _ := models.NormalizeSymbol(symbol)
	rows := make([]models.StockPrice, 0, len(bars))
	for _, b := range bars {
		d, err := time.Parse(models.DateLayout, b.Date)
		if err != nil {
			return models.InvalidInput("market.SavePrices", "bad bar date %q", b.Date)
		}
		rows = append(rows, models.StockPrice{
			Symbol: display, Date: d,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
		}).
		Create(&rows).Error
	return models.ExternalService("market.SavePrices", err)
}

// RecordRun stores an ingest audit row.
func (r *Repository) RecordRun(ctx context.Context, run *models.IngestRun) error {
	return models.ExternalService("market.RecordRun", r.db.WithContext(ctx).Create(run).Error)
}

// RecentRuns lists the latest ingest audit rows, newest first.
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]models.IngestRun, error) {
	var runs []models.IngestRun
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(max(limit, 1)).Find(&runs).Error
	if err != nil {
		return nil, models.ExternalService("market.RecentRuns", err)
	}
	return runs, nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
