package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/schema"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("news/")

// BadgerStore keeps records in an embedded Badger database and scans them
// exactly on every search. It suits single-node deployments of modest size.
type BadgerStore struct {
	db  *badger.DB
	dim int
	log *logger.Logger
	now func() time.Time
}

// OpenBadgerStore opens (or creates) a store at path. An empty path keeps everything in memory.
func OpenBadgerStore(path string, dim int, log *logger.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	log.Info(fmt.Sprintf("Opened badger vector store at %q", path))
	return &BadgerStore{db: db, dim: dim, log: log, now: time.Now}, nil
}

func badgerKey(id string) []byte {
	return append(append([]byte(nil), badgerPrefix...), id...)
}

func (s *BadgerStore) Upsert(_ context.Context, records ...models.NewsEmbeddingRecord) error {
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, r := range records {
			r := r
			if err := prepareUpsert(&r, s.dim, now); err != nil {
				return err
			}
			key := badgerKey(r.ID)
			stored, err := s.get(txn, key)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if stored != nil && keepExisting(stored, &r) {
				continue
			}
			val, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode record %s: %w", r.ID, err)
			}
			if err := txn.Set(key, val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if models.KindOf(err) == models.KindInvalidInput {
			return err
		}
		return models.ExternalService("vectorstore.Upsert", err)
	}
	return nil
}

func (s *BadgerStore) get(txn *badger.Txn, key []byte) (*models.NewsEmbeddingRecord, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var r models.NewsEmbeddingRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// scan calls fn for every stored record.
func (s *BadgerStore) scan(fn func(r *models.NewsEmbeddingRecord)) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			var r models.NewsEmbeddingRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				s.log.Warn(fmt.Sprintf("Skipping undecodable record %q: %v", it.Item().Key(), err))
				continue
			}
			fn(&r)
		}
		return nil
	})
}

func (s *BadgerStore) Search(_ context.Context, vector []float32, filter schema.Filter, threshold float64, topK int) ([]schema.Match, error) {
	if err := checkQuery(vector, s.dim); err != nil {
		return nil, err
	}
	var candidates []schema.Match
	err := s.scan(func(r *models.NewsEmbeddingRecord) {
		if filter.Matches(r) {
			candidates = append(candidates, schema.Match{Record: *r, Similarity: CosineSimilarity(vector, r.Vector)})
		}
	})
	if err != nil {
		return nil, models.ExternalService("vectorstore.Search", err)
	}
	return Rank(candidates, threshold, topK), nil
}

func (s *BadgerStore) Exists(_ context.Context, id string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(id))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, models.ExternalService("vectorstore.Exists", err)
	}
}

func (s *BadgerStore) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(id))
	})
	if err != nil {
		return models.ExternalService("vectorstore.Delete", err)
	}
	return nil
}

func (s *BadgerStore) Stats(_ context.Context) (schema.Stats, error) {
	total := 0
	symbols := make(map[string]struct{})
	err := s.scan(func(r *models.NewsEmbeddingRecord) {
		total++
		if r.Symbol != "" {
			symbols[r.Symbol] = struct{}{}
		}
	})
	if err != nil {
		return schema.Stats{}, models.ExternalService("vectorstore.Stats", err)
	}
	return schema.Stats{Backend: "badger", TotalEmbeddings: total, UniqueSymbols: len(symbols), Dimension: s.dim}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ interfaces.VectorStore = (*BadgerStore)(nil)
