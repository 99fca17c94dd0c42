package models

import "time"

// MatchQuality is a coarse label for how closely a document matched a query.
type MatchQuality string

const (
	QualityExcellent MatchQuality = "EXCELLENT"
	QualityHigh      MatchQuality = "HIGH"
	QualityGood      MatchQuality = "GOOD"
	QualityModerate  MatchQuality = "MODERATE"
	QualityLow       MatchQuality = "LOW"
)

// Match quality breakpoints over raw cosine similarity. Lower bounds are inclusive.
const (
	QualityExcellentMin = 0.85
	QualityHighMin      = 0.75
	QualityGoodMin      = 0.65
	QualityModerateMin  = 0.55
)

// QualityFor buckets a similarity score.
func QualityFor(similarity float64) MatchQuality {
	switch {
	case similarity >= QualityExcellentMin:
		return QualityExcellent
	case similarity >= QualityHighMin:
		return QualityHigh
	case similarity >= QualityGoodMin:
		return QualityGood
	case similarity >= QualityModerateMin:
		return QualityModerate
	default:
		return QualityLow
	}
}

// EvidenceItem is one retrieved article, ranked for a query. It is never persisted.
type EvidenceItem struct {
	Rank           int            `json:"rank"`
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary"`
	Source         string         `json:"source"`
	URL            string         `json:"url,omitempty"`
	Symbol         string         `json:"symbol,omitempty"`
	PublishedAt    time.Time      `json:"published_at"`
	Sentiment      SentimentLabel `json:"sentiment"`
	SentimentScore float64        `json:"sentiment_score"`
	Similarity     float64        `json:"similarity"`
	RelevanceScore float64        `json:"relevance_score"`
	MatchQuality   MatchQuality   `json:"match_quality"`
}

// EvidenceQuery is the input to evidence retrieval.
type EvidenceQuery struct {
	Symbol    string    `json:"symbol"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	QueryText string    `json:"query_text"`
	TopK      int       `json:"top_k"`
}

// RAGStats describes the retrieval subsystem.
type RAGStats struct {
	Status          string `json:"rag_system"`
	Backend         string `json:"backend"`
	TotalEmbeddings int    `json:"total_embeddings"`
	UniqueSymbols   int    `json:"unique_symbols"`
	Dimension       int    `json:"vector_dimension"`
	EmbeddingModel  string `json:"embedding_model"`
}
