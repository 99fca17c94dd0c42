package models

import (
	"time"

	"gorm.io/datatypes"
)

// StockPrice is one daily bar in the relational price store.
// Symbol and Date together are unique.
type StockPrice struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"index:idx_symbol_date,unique;not null;size:32"`
	Date      time.Time `gorm:"index:idx_symbol_date,unique;type:date;not null"`
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (StockPrice) TableName() string { return "stock_prices" }

// NewsRow is a news article in the relational store.
type NewsRow struct {
	ID             string    `gorm:"primaryKey;size:64"`
	Symbol         string    `gorm:"index;size:32"`
	Title          string    `gorm:"not null;size:512"`
	Content        string    `gorm:"type:text"`
	URL            string    `gorm:"size:1024"`
	Source         string    `gorm:"size:128"`
	Sector         string    `gorm:"size:128"`
	PublishedAt    time.Time `gorm:"index"`
	Sentiment      string    `gorm:"size:16"`
	SentimentScore *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (NewsRow) TableName() string { return "news_articles" }

// ToArticle converts the row to the API shape.
func (r NewsRow) ToArticle() NewsArticle {
	return NewsArticle{
		ID:             r.ID,
		Title:          r.Title,
		Content:        r.Content,
		URL:            r.URL,
		Source:         r.Source,
		Symbol:         r.Symbol,
		Sector:         r.Sector,
		PublishedAt:    Timestamp{Time: r.PublishedAt},
		Sentiment:      SentimentLabel(r.Sentiment),
		SentimentScore: r.SentimentScore,
	}
}

// NewsRowFromArticle is the inverse of ToArticle.
func NewsRowFromArticle(a NewsArticle) NewsRow {
	score := a.SentimentScore
	if score == nil {
		score = a.ImpactScore
	}
	return NewsRow{
		ID:             a.ID,
		Symbol:         a.Symbol,
		Title:          a.Title,
		Content:        a.Content,
		URL:            a.URL,
		Source:         a.Source,
		Sector:         a.Sector,
		PublishedAt:    a.PublishedAt.Time,
		Sentiment:      string(a.Label()),
		SentimentScore: score,
	}
}

// IngestRun audits one batch pushed through the indexing pipeline.
type IngestRun struct {
	ID         string `gorm:"primaryKey;size:36"`
	Trigger    string `gorm:"size:32;not null"` // "kafka", "backfill" or "cli"
	Indexed    int
	Skipped    int
	Failed     int
	Errors     datatypes.JSON
	StartedAt  time.Time
	FinishedAt time.Time
}

func (IngestRun) TableName() string { return "ingest_runs" }
