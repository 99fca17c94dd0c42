package vectorstore

import (
	"context"
	"sync"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/schema"
)

// MemoryStore is an exact, in-process vector store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.NewsEmbeddingRecord
	dim     int
	now     func() time.Time
}

// NewMemoryStore creates an empty store. dim of 0 accepts any dimension.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.NewsEmbeddingRecord),
		dim:     dim,
		now:     time.Now,
	}
}

func (s *MemoryStore) Upsert(_ context.Context, records ...models.NewsEmbeddingRecord) error {
	now := s.now()
	prepared := make([]models.NewsEmbeddingRecord, 0, len(records))
	for _, r := range records {
		r = cloneRecord(r)
		if err := prepareUpsert(&r, s.dim, now); err != nil {
			return err
		}
		prepared = append(prepared, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range prepared {
		r := prepared[i]
		if stored, ok := s.records[r.ID]; ok && keepExisting(&stored, &r) {
			continue
		}
		s.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, filter schema.Filter, threshold float64, topK int) ([]schema.Match, error) {
	if err := checkQuery(vector, s.dim); err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := make([]schema.Match, 0, len(s.records))
	for _, r := range s.records {
		if !filter.Matches(&r) {
			continue
		}
		candidates = append(candidates, schema.Match{Record: cloneRecord(r), Similarity: CosineSimilarity(vector, r.Vector)})
	}
	s.mu.RUnlock()
	return Rank(candidates, threshold, topK), nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

// Get returns a copy of the record stored under id.
func (s *MemoryStore) Get(id string) (models.NewsEmbeddingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return models.NewsEmbeddingRecord{}, false
	}
	return cloneRecord(r), true
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (schema.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbols := make(map[string]struct{})
	for _, r := range s.records {
		if r.Symbol != "" {
			symbols[r.Symbol] = struct{}{}
		}
	}
	return schema.Stats{
		Backend:         "memory",
		TotalEmbeddings: len(s.records),
		UniqueSymbols:   len(symbols),
		Dimension:       s.dim,
	}, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ interfaces.VectorStore = (*MemoryStore)(nil)
