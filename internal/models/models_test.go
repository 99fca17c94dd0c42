package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityFor(t *testing.T) {
	assert.Equal(t, QualityExcellent, QualityFor(0.86))
	assert.Equal(t, QualityHigh, QualityFor(0.76))
	assert.Equal(t, QualityGood, QualityFor(0.66))
	assert.Equal(t, QualityModerate, QualityFor(0.56))
	assert.Equal(t, QualityLow, QualityFor(0.40))
}

func TestQualityForBreakpoints(t *testing.T) {
	const eps = 1e-9
	breakpoints := []struct {
		min   float64
		at    MatchQuality
		below MatchQuality
	}{
		{QualityExcellentMin, QualityExcellent, QualityHigh},
		{QualityHighMin, QualityHigh, QualityGood},
		{QualityGoodMin, QualityGood, QualityModerate},
		{QualityModerateMin, QualityModerate, QualityLow},
	}
	for _, bp := range breakpoints {
		assert.Equal(t, bp.at, QualityFor(bp.min), "at %v", bp.min)
		assert.Equal(t, bp.at, QualityFor(bp.min+eps), "above %v", bp.min)
		assert.Equal(t, bp.below, QualityFor(bp.min-eps), "below %v", bp.min)
	}
}

func TestDeriveLabel(t *testing.T) {
	assert.Equal(t, SentimentPositive, DeriveLabel(0.4))
	assert.Equal(t, SentimentNegative, DeriveLabel(-0.4))
	assert.Equal(t, SentimentNeutral, DeriveLabel(0))
	assert.Equal(t, SentimentNeutral, DeriveLabel(NeutralBand))
	assert.Equal(t, SentimentNeutral, DeriveLabel(-NeutralBand))
}

func TestRecordNormalize(t *testing.T) {
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	long := make([]rune, 800)
	for i := range long {
		long[i] = 'é'
	}
	r := NewsEmbeddingRecord{
		ID:             "n1",
		Symbol:         " tcs ",
		ContentPreview: string(long),
		Sentiment:      SentimentPositive,
		SentimentScore: -0.6,
	}
	r.Normalize(now)

	assert.Equal(t, "TCS", r.Symbol)
	assert.Equal(t, ContentPreviewLimit, len([]rune(r.ContentPreview)))
	assert.Equal(t, SentimentNegative, r.Sentiment, "label must follow the score")
	assert.Equal(t, now, r.UpdatedAt)
}

func TestNewsArticleDecode(t *testing.T) {
	raw := `{"id":"a1","title":"TCS wins deal","published_at":"2024-01-03T09:30:00","impact_score":0.42,"stock_symbol":"TCS"}`
	var a NewsArticle
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	assert.Equal(t, time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC), a.PublishedAt.Time)
	score, ok := a.Score()
	assert.True(t, ok)
	assert.InDelta(t, 0.42, score, 1e-12)
	assert.Equal(t, SentimentPositive, a.Label())
}

func TestTimestampNullRoundTrip(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte("null"), &ts))
	assert.True(t, ts.IsZero())

	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestErrorKinds(t *testing.T) {
	inv := InvalidInput("orchestrator.Explain", "symbol is empty")
	wrapped := fmt.Errorf("handler: %w", inv)

	assert.True(t, errors.Is(wrapped, ErrInvalidInput))
	assert.False(t, errors.Is(wrapped, ErrExternalService))
	assert.Equal(t, KindInvalidInput, KindOf(wrapped))
	assert.False(t, Retryable(wrapped))

	ext := ExternalService("embedding.Embed", errors.New("connection refused"))
	assert.True(t, errors.Is(ext, ErrExternalService))
	assert.True(t, Retryable(ext))
	assert.Contains(t, ext.Error(), "connection refused")

	assert.Nil(t, ExternalService("noop", nil))
	assert.Same(t, ext, ExternalService("outer", ext), "already classified errors are not rewrapped")

	auth := Unauthenticated("api.Auth", "missing api key")
	assert.Equal(t, KindAuthentication, KindOf(auth))
	assert.Equal(t, "authentication", KindOf(auth).String())

	assert.Equal(t, KindExternalService, KindOf(errors.New("plain")))
}
