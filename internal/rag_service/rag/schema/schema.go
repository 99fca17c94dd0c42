package schema

import (
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
)

// Filter narrows a vector search before ranking. Zero values mean "no constraint".
// Start and End are inclusive bounds on the publication timestamp.
type Filter struct {
	// Symbols matches any of the listed symbols, case-insensitively. Empty searches all symbols.
	Symbols []string
	Start   *time.Time
	End     *time.Time
}

// Matches reports whether r passes the symbol and date predicates.
func (f Filter) Matches(r *models.NewsEmbeddingRecord) bool {
	if len(f.Symbols) > 0 {
		found := false
		for _, s := range f.Symbols {
			if strings.EqualFold(s, r.Symbol) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Start != nil && r.PublishedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && r.PublishedAt.After(*f.End) {
		return false
	}
	return true
}

// Match is a stored record paired with its similarity to the query, in [0,1].
type Match struct {
	Record     models.NewsEmbeddingRecord
	Similarity float64
}

// Stats describes the contents of a vector store.
type Stats struct {
	Backend         string `json:"backend"`
	TotalEmbeddings int    `json:"total_embeddings"`
	UniqueSymbols   int    `json:"unique_symbols"`
	Dimension       int    `json:"vector_dimension"`
}
