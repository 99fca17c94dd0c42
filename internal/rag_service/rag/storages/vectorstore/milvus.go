package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/database/milvus"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/schema"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var scalarFields = []string{
	milvus.FieldID, milvus.FieldSymbol, milvus.FieldTitle, milvus.FieldContentPreview,
	milvus.FieldPublishedAt, milvus.FieldSentiment, milvus.FieldSentimentScore,
	milvus.FieldSource, milvus.FieldURL, milvus.FieldUpdatedAt,
}

// MilvusStore adapts a Milvus collection to the VectorStore interface.
// Candidates come from the ANN index (COSINE metric); final ordering and
// thresholding happen client side so every backend ranks identically.
type MilvusStore struct {
	log             *logger.Logger
	mc              *milvus.MilvusClient
	client          client.Client
	collection      string
	dim             int
	candidateFactor int
	now             func() time.Time
}

// NewMilvusStore wraps an initialized client. The collection must already exist (see EnsureCollection).
func NewMilvusStore(mc *milvus.MilvusClient, log *logger.Logger) (*MilvusStore, error) {
	if mc == nil || mc.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	factor := mc.Config.CandidateFactor
	if factor < 1 {
		factor = 1
	}
	return &MilvusStore{
		log:             log,
		mc:              mc,
		client:          mc.Client,
		collection:      mc.Config.CollectionName,
		dim:             mc.Dim,
		candidateFactor: factor,
		now:             time.Now,
	}, nil
}

func (s *MilvusStore) Upsert(ctx context.Context, records ...models.NewsEmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := s.now()
	// Last record per id wins inside one batch.
	byID := make(map[string]models.NewsEmbeddingRecord, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		r = cloneRecord(r)
		if err := prepareUpsert(&r, s.dim, now); err != nil {
			return err
		}
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}

	stored, err := s.updatedAt(ctx, order)
	if err != nil {
		return models.ExternalService("vectorstore.Upsert", err)
	}

	var (
		ids, symbols, titles, previews, sentiments, sources, urls []string
		published, updated                                        []int64
		scores                                                    []float64
		vectors                                                   [][]float32
	)
	for _, id := range order {
		r := byID[id]
		if ts, ok := stored[id]; ok && time.Unix(0, ts).After(r.UpdatedAt) {
			continue
		}
		ids = append(ids, r.ID)
		vectors = append(vectors, r.Vector)
		symbols = append(symbols, r.Symbol)
		titles = append(titles, r.Title)
		previews = append(previews, r.ContentPreview)
		published = append(published, r.PublishedAt.Unix())
		sentiments = append(sentiments, string(r.Sentiment))
		scores = append(scores, r.SentimentScore)
		sources = append(sources, r.Source)
		urls = append(urls, r.URL)
		updated = append(updated, r.UpdatedAt.UnixNano())
	}
	if len(ids) == 0 {
		return nil
	}

	s.log.Debug(fmt.Sprintf("Upserting %d records into Milvus collection %s", len(ids), s.collection))
	_, err = s.client.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(milvus.FieldID, ids),
		entity.NewColumnFloatVector(milvus.FieldEmbedding, s.dim, vectors),
		entity.NewColumnVarChar(milvus.FieldSymbol, symbols),
		entity.NewColumnVarChar(milvus.FieldTitle, titles),
		entity.NewColumnVarChar(milvus.FieldContentPreview, previews),
		entity.NewColumnInt64(milvus.FieldPublishedAt, published),
		entity.NewColumnVarChar(milvus.FieldSentiment, sentiments),
		entity.NewColumnDouble(milvus.FieldSentimentScore, scores),
		entity.NewColumnVarChar(milvus.FieldSource, sources),
		entity.NewColumnVarChar(milvus.FieldURL, urls),
		entity.NewColumnInt64(milvus.FieldUpdatedAt, updated),
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("Failed to upsert into Milvus: %v", err))
		return models.ExternalService("vectorstore.Upsert", err)
	}
	return nil
}

// updatedAt fetches the stored updated_at of the given ids.
func (s *MilvusStore) updatedAt(ctx context.Context, ids []string) (map[string]int64, error) {
	rs, err := s.client.Query(ctx, s.collection, nil, idsExpr(ids), []string{milvus.FieldID, milvus.FieldUpdatedAt})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	idCol, ok1 := rs.GetColumn(milvus.FieldID).(*entity.ColumnVarChar)
	tsCol, ok2 := rs.GetColumn(milvus.FieldUpdatedAt).(*entity.ColumnInt64)
	if !ok1 || !ok2 {
		return out, nil
	}
	idData, tsData := idCol.Data(), tsCol.Data()
	for i := range idData {
		if i < len(tsData) {
			out[idData[i]] = tsData[i]
		}
	}
	return out, nil
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, filter schema.Filter, threshold float64, topK int) ([]schema.Match, error) {
	if err := checkQuery(vector, s.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []schema.Match{}, nil
	}
	sp, err := s.mc.SearchParam()
	if err != nil {
		return nil, models.ExternalService("vectorstore.Search", err)
	}
	expr := filterExpr(filter)
	s.log.Debug(fmt.Sprintf("Querying Milvus collection '%s' with filter: '%s'", s.collection, expr))

	results, err := s.client.Search(
		ctx, s.collection, []string{}, expr, scalarFields,
		[]entity.Vector{entity.FloatVector(vector)},
		milvus.FieldEmbedding, entity.COSINE, topK*s.candidateFactor, sp,
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("Failed to search in Milvus: %v", err))
		return nil, models.ExternalService("vectorstore.Search", err)
	}

	candidates := make([]schema.Match, 0, topK)
	for _, res := range results {
		if res.Err != nil {
			return nil, models.ExternalService("vectorstore.Search", res.Err)
		}
		cols := columns(res.Fields)
		for i := 0; i < res.ResultCount; i++ {
			r := cols.record(i)
			// Filter again so a lossy expression never widens the result.
			if !filter.Matches(&r) {
				continue
			}
			candidates = append(candidates, schema.Match{Record: r, Similarity: ClampSimilarity(float64(res.Scores[i]))})
		}
	}
	return Rank(candidates, threshold, topK), nil
}

func (s *MilvusStore) Exists(ctx context.Context, id string) (bool, error) {
	rs, err := s.client.Query(ctx, s.collection, nil, idsExpr([]string{id}), []string{milvus.FieldID})
	if err != nil {
		return false, models.ExternalService("vectorstore.Exists", err)
	}
	col := rs.GetColumn(milvus.FieldID)
	return col != nil && col.Len() > 0, nil
}

func (s *MilvusStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, s.collection, "", idsExpr([]string{id})); err != nil {
		return models.ExternalService("vectorstore.Delete", err)
	}
	return nil
}

func (s *MilvusStore) Stats(ctx context.Context) (schema.Stats, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return schema.Stats{}, models.ExternalService("vectorstore.Stats", err)
	}
	total, _ := strconv.Atoi(stats["row_count"])

	// Bounded by Milvus' query window, good enough for a status page.
	rs, err := s.client.Query(ctx, s.collection, nil, fmt.Sprintf(`%s != ""`, milvus.FieldID), []string{milvus.FieldSymbol})
	if err != nil {
		return schema.Stats{}, models.ExternalService("vectorstore.Stats", err)
	}
	symbols := make(map[string]struct{})
	if col, ok := rs.GetColumn(milvus.FieldSymbol).(*entity.ColumnVarChar); ok {
		for _, sym := range col.Data() {
			if sym != "" {
				symbols[sym] = struct{}{}
			}
		}
	}
	return schema.Stats{Backend: "milvus", TotalEmbeddings: total, UniqueSymbols: len(symbols), Dimension: s.dim}, nil
}

// Close is a no-op; the MilvusClient owner closes the connection.
func (s *MilvusStore) Close() error { return nil }

// filterExpr renders a boolean expression over the scalar fields.
func filterExpr(f schema.Filter) string {
	var conds []string
	if len(f.Symbols) > 0 {
		quoted := make([]string, 0, len(f.Symbols))
		for _, sym := range f.Symbols {
			quoted = append(quoted, strconv.Quote(strings.ToUpper(strings.TrimSpace(sym))))
		}
		conds = append(conds, fmt.Sprintf("%s in [%s]", milvus.FieldSymbol, strings.Join(quoted, ", ")))
	}
	if f.Start != nil {
		conds = append(conds, fmt.Sprintf("%s >= %d", milvus.FieldPublishedAt, f.Start.Unix()))
	}
	if f.End != nil {
		conds = append(conds, fmt.Sprintf("%s <= %d", milvus.FieldPublishedAt, f.End.Unix()))
	}
	return strings.Join(conds, " and ")
}

func idsExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", milvus.FieldID, strings.Join(quoted, ", "))
}

type resultColumns struct {
	varchar map[string][]string
	int64s  map[string][]int64
	doubles map[string][]float64
}

func columns(fields []entity.Column) resultColumns {
	rc := resultColumns{
		varchar: make(map[string][]string),
		int64s:  make(map[string][]int64),
		doubles: make(map[string][]float64),
	}
	for _, f := range fields {
		switch c := f.(type) {
		case *entity.ColumnVarChar:
			rc.varchar[c.Name()] = c.Data()
		case *entity.ColumnInt64:
			rc.int64s[c.Name()] = c.Data()
		case *entity.ColumnDouble:
			rc.doubles[c.Name()] = c.Data()
		}
	}
	return rc
}

func (rc resultColumns) str(name string, i int) string {
	if d := rc.varchar[name]; i < len(d) {
		return d[i]
	}
	return ""
}

func (rc resultColumns) i64(name string, i int) int64 {
	if d := rc.int64s[name]; i < len(d) {
		return d[i]
	}
	return 0
}

func (rc resultColumns) record(i int) models.NewsEmbeddingRecord {
	var score float64
	if d := rc.doubles[milvus.FieldSentimentScore]; i < len(d) {
		score = d[i]
	}
	return models.NewsEmbeddingRecord{
		ID:             rc.str(milvus.FieldID, i),
		Symbol:         rc.str(milvus.FieldSymbol, i),
		Title:          rc.str(milvus.FieldTitle, i),
		ContentPreview: rc.str(milvus.FieldContentPreview, i),
		PublishedAt:    time.Unix(rc.i64(milvus.FieldPublishedAt, i), 0).UTC(),
		Sentiment:      models.SentimentLabel(rc.str(milvus.FieldSentiment, i)),
		SentimentScore: score,
		Source:         rc.str(milvus.FieldSource, i),
		URL:            rc.str(milvus.FieldURL, i),
		UpdatedAt:      time.Unix(0, rc.i64(milvus.FieldUpdatedAt, i)).UTC(),
	}
}

var _ interfaces.VectorStore = (*MilvusStore)(nil)
