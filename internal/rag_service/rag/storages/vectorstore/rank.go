package vectorstore

import (
	"math"
	"sort"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/schema"
)

// CosineSimilarity returns the cosine of the angle between a and b, clamped to [0,1].
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return ClampSimilarity(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// ClampSimilarity maps a raw cosine score into [0,1].
func ClampSimilarity(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Rank drops matches below threshold, orders the rest and keeps at most topK.
// Order is similarity descending, then newer publication, then id ascending.
// The input slice is not modified.
func Rank(matches []schema.Match, threshold float64, topK int) []schema.Match {
	out := make([]schema.Match, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= threshold {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.Record.PublishedAt.Equal(b.Record.PublishedAt) {
			return a.Record.PublishedAt.After(b.Record.PublishedAt)
		}
		return a.Record.ID < b.Record.ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// prepareUpsert normalizes r and checks it against the store dimension.
func prepareUpsert(r *models.NewsEmbeddingRecord, dim int, now time.Time) error {
	const op = "vectorstore.Upsert"
	if r.ID == "" {
		return models.InvalidInput(op, "record id is empty")
	}
	if len(r.Vector) == 0 {
		return models.InvalidInput(op, "record %s has no vector", r.ID)
	}
	if dim > 0 && len(r.Vector) != dim {
		return models.InvalidInput(op, "record %s has %d dimensions, store expects %d", r.ID, len(r.Vector), dim)
	}
	r.Normalize(now)
	return nil
}

// keepExisting reports whether a stored record should win over an incoming one.
func keepExisting(stored, incoming *models.NewsEmbeddingRecord) bool {
	return stored.UpdatedAt.After(incoming.UpdatedAt)
}

func checkQuery(vector []float32, dim int) error {
	const op = "vectorstore.Search"
	if len(vector) == 0 {
		return models.InvalidInput(op, "query vector is empty")
	}
	if dim > 0 && len(vector) != dim {
		return models.InvalidInput(op, "query has %d dimensions, store expects %d", len(vector), dim)
	}
	return nil
}

func cloneRecord(r models.NewsEmbeddingRecord) models.NewsEmbeddingRecord {
	r.Vector = append([]float32(nil), r.Vector...)
	return r
}
