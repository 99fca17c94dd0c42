package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/schema"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)

func rec(id, symbol string, vec []float32, published time.Time) models.NewsEmbeddingRecord {
	return models.NewsEmbeddingRecord{
		ID:             id,
		Vector:         vec,
		Symbol:         symbol,
		Title:          "title " + id,
		ContentPreview: "content " + id,
		PublishedAt:    published,
		SentimentScore: 0.2,
	}
}

// stores returns every locally runnable backend.
func stores(t *testing.T) map[string]interfaces.VectorStore {
	t.Helper()
	b, err := OpenBadgerStore("", 3, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return map[string]interfaces.VectorStore{
		"memory": NewMemoryStore(3),
		"badger": b,
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0, 0}, []float32{2, 0, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0, 0}, []float32{-1, 0, 0}), "negative cosine clamps to zero")
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
}

func TestRankOrderingAndTruncation(t *testing.T) {
	older := day.Add(-24 * time.Hour)
	in := []schema.Match{
		{Record: models.NewsEmbeddingRecord{ID: "b", PublishedAt: older}, Similarity: 0.8},
		{Record: models.NewsEmbeddingRecord{ID: "a", PublishedAt: day}, Similarity: 0.8},
		{Record: models.NewsEmbeddingRecord{ID: "c", PublishedAt: day}, Similarity: 0.9},
		{Record: models.NewsEmbeddingRecord{ID: "d", PublishedAt: day}, Similarity: 0.69},
		{Record: models.NewsEmbeddingRecord{ID: "e", PublishedAt: older}, Similarity: 0.8},
	}
	out := Rank(in, 0.7, 3)

	ids := make([]string, len(out))
	for i, m := range out {
		ids[i] = m.Record.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, "b", in[0].Record.ID, "input untouched")

	assert.NotNil(t, Rank(nil, 0.7, 3))
	assert.Empty(t, Rank(in, 0.95, 3))
}

func TestUpsertIsIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := rec("n1", "tcs", []float32{1, 0, 0}, day)
			first.UpdatedAt = day
			require.NoError(t, s.Upsert(ctx, first))

			second := rec("n1", "TCS", []float32{0, 1, 0}, day)
			second.Title = "revised"
			second.UpdatedAt = day.Add(time.Minute)
			require.NoError(t, s.Upsert(ctx, second))

			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, st.TotalEmbeddings)
			assert.Equal(t, 1, st.UniqueSymbols)

			got, err := s.Search(ctx, []float32{0, 1, 0}, schema.Filter{}, 0.5, 5)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "revised", got[0].Record.Title)
			assert.Equal(t, "TCS", got[0].Record.Symbol)
		})
	}
}

func TestUpsertKeepsNewerStoredRecord(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			newer := rec("n1", "TCS", []float32{1, 0, 0}, day)
			newer.Title = "newer"
			newer.UpdatedAt = day.Add(time.Hour)
			stale := rec("n1", "TCS", []float32{1, 0, 0}, day)
			stale.Title = "stale"
			stale.UpdatedAt = day

			require.NoError(t, s.Upsert(ctx, newer))
			require.NoError(t, s.Upsert(ctx, stale))

			got, err := s.Search(ctx, []float32{1, 0, 0}, schema.Filter{}, 0, 5)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "newer", got[0].Record.Title)
		})
	}
}

func TestUpsertValidation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, s.Upsert(ctx, rec("", "TCS", []float32{1, 0, 0}, day)), models.ErrInvalidInput)
			assert.ErrorIs(t, s.Upsert(ctx, rec("x", "TCS", nil, day)), models.ErrInvalidInput)
			assert.ErrorIs(t, s.Upsert(ctx, rec("x", "TCS", []float32{1, 0}, day)), models.ErrInvalidInput)

			_, err := s.Search(ctx, []float32{1}, schema.Filter{}, 0, 5)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestSearchFiltersThresholdAndTopK(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx,
				rec("tcs-1", "TCS", []float32{1, 0, 0}, day),
				rec("tcs-2", "TCS", []float32{0.9, 0.1, 0}, day.Add(-48*time.Hour)),
				rec("tcs-3", "TCS", []float32{0, 0, 1}, day),
				rec("infy-1", "INFY", []float32{1, 0, 0}, day),
			))

			start := day.Add(-24 * time.Hour)
			end := day.Add(24 * time.Hour)
			got, err := s.Search(ctx, []float32{1, 0, 0}, schema.Filter{Symbols: []string{"tcs"}, Start: &start, End: &end}, 0.7, 5)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "tcs-1", got[0].Record.ID)
			assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)

			got, err = s.Search(ctx, []float32{1, 0, 0}, schema.Filter{Symbols: []string{"TCS"}}, 0.7, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "tcs-1", got[0].Record.ID)

			got, err = s.Search(ctx, []float32{1, 0, 0}, schema.Filter{Symbols: []string{"WIPRO"}}, 0.7, 5)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)

			for _, m := range got {
				assert.GreaterOrEqual(t, m.Similarity, 0.7)
			}
		})
	}
}

func TestExistsAndDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, rec("n1", "TCS", []float32{1, 0, 0}, day)))

			ok, err := s.Exists(ctx, "n1")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, s.Delete(ctx, "n1"))
			ok, err = s.Exists(ctx, "n1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryStoreNormalizesRecords(t *testing.T) {
	s := NewMemoryStore(3)
	r := rec("n1", " tcs ", []float32{1, 0, 0}, day)
	r.SentimentScore = -0.4
	r.Sentiment = models.SentimentPositive
	require.NoError(t, s.Upsert(context.Background(), r))

	got, ok := s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, "TCS", got.Symbol)
	assert.Equal(t, models.SentimentNegative, got.Sentiment)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestFilterExpr(t *testing.T) {
	start := time.Unix(100, 0)
	end := time.Unix(200, 0)
	assert.Equal(t, "", filterExpr(schema.Filter{}))
	assert.Equal(t,
		`symbol in ["TCS", "TCS.NS"] and published_at >= 100 and published_at <= 200`,
		filterExpr(schema.Filter{Symbols: []string{"tcs", "TCS.NS"}, Start: &start, End: &end}))
	assert.Equal(t, `id in ["a", "b\"c"]`, idsExpr([]string{"a", `b"c`}))
}
