package interfaces

import (
	"context"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/schema"
)

// VectorStore persists article embeddings and answers filtered similarity queries.
// Implementations must tolerate concurrent reads and concurrent upserts of the same id.
type VectorStore interface {
	// Upsert inserts or replaces records by id. A stored record with a strictly
	// newer UpdatedAt is kept over the incoming one.
	Upsert(ctx context.Context, records ...models.NewsEmbeddingRecord) error
	// Search filters, ranks by similarity descending (newer publication first on
	// ties), drops results below threshold and truncates to topK. Never returns nil on success.
	Search(ctx context.Context, vector []float32, filter schema.Filter, threshold float64, topK int) ([]schema.Match, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (schema.Stats, error)
	Close() error
}

// EmbeddingModel embeds a single query or document text.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbeddingModel also embeds many texts per call.
type BatchEmbeddingModel interface {
	EmbeddingModel
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Archive stores the raw form of ingested articles.
type Archive interface {
	Put(ctx context.Context, article models.NewsArticle) error
}
