package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// SentimentLabel is the categorical sentiment of a news article.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// NeutralBand is the half-width of the score interval treated as neutral.
const NeutralBand = 0.05

// ContentPreviewLimit caps the stored article preview, in runes.
const ContentPreviewLimit = 500

// Valid reports whether l is one of the three known labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// DeriveLabel maps a sentiment score to its label.
func DeriveLabel(score float64) SentimentLabel {
	switch {
	case score > NeutralBand:
		return SentimentPositive
	case score < -NeutralBand:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Timestamp is a time.Time that accepts the looser layouts the backend emits.
// Values without a zone are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
	DateLayout,
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseTimestamp parses s with the first matching layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// NewsArticle is a news item as served by the backend news API and carried on the ingest topic.
type NewsArticle struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Content        string         `json:"content,omitempty"`
	URL            string         `json:"url,omitempty"`
	Source         string         `json:"source,omitempty"`
	Symbol         string         `json:"stock_symbol,omitempty"`
	Sector         string         `json:"sector,omitempty"`
	PublishedAt    Timestamp      `json:"published_at"`
	Sentiment      SentimentLabel `json:"sentiment,omitempty"`
	SentimentScore *float64       `json:"sentiment_score,omitempty"`
	// ImpactScore is the backend's older name for the sentiment score.
	ImpactScore *float64 `json:"impact_score,omitempty"`
}

// Score returns the article's sentiment score and whether one was present.
func (a NewsArticle) Score() (float64, bool) {
	if a.SentimentScore != nil {
		return *a.SentimentScore, true
	}
	if a.ImpactScore != nil {
		return *a.ImpactScore, true
	}
	return 0, false
}

// Label returns the article's own label when valid, otherwise one derived from its score.
func (a NewsArticle) Label() SentimentLabel {
	if a.Sentiment.Valid() {
		return a.Sentiment
	}
	score, _ := a.Score()
	return DeriveLabel(score)
}

// NewsEmbeddingRecord is one article as persisted in the vector store.
type NewsEmbeddingRecord struct {
	ID             string         `json:"id"`
	Vector         []float32      `json:"vector"`
	Symbol         string         `json:"symbol,omitempty"`
	Title          string         `json:"title"`
	ContentPreview string         `json:"content_preview"`
	PublishedAt    time.Time      `json:"published_at"`
	Sentiment      SentimentLabel `json:"sentiment"`
	SentimentScore float64        `json:"sentiment_score"`
	Source         string         `json:"source,omitempty"`
	URL            string         `json:"url,omitempty"`
	// UpdatedAt orders concurrent upserts of the same ID; the newest wins.
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize enforces the record invariants: preview length, upper-case symbol,
// a label consistent with the score, and a set UpdatedAt.
func (r *NewsEmbeddingRecord) Normalize(now time.Time) {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.ContentPreview = TruncateRunes(r.ContentPreview, ContentPreviewLimit)
	r.Sentiment = DeriveLabel(r.SentimentScore)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
}

// RecordFromArticle builds the vector store record for a and its embedding.
func RecordFromArticle(a NewsArticle, vector []float32) NewsEmbeddingRecord {
	score, _ := a.Score()
	preview := a.Content
	if preview == "" {
		preview = a.Title
	}
	return NewsEmbeddingRecord{
		ID:             a.ID,
		Vector:         vector,
		Symbol:         a.Symbol,
		Title:          a.Title,
		ContentPreview: preview,
		PublishedAt:    a.PublishedAt.Time,
		SentimentScore: score,
		Source:         a.Source,
		URL:            a.URL,
	}
}

// TruncateRunes returns the first n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
