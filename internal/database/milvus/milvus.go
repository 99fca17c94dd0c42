package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Field names of the news embedding collection.
const (
	FieldID             = "id"
	FieldEmbedding      = "embedding"
	FieldSymbol         = "symbol"
	FieldTitle          = "title"
	FieldContentPreview = "content_preview"
	FieldPublishedAt    = "published_at" // unix seconds
	FieldSentiment      = "sentiment"
	FieldSentimentScore = "sentiment_score"
	FieldSource         = "source"
	FieldURL            = "url"
	FieldUpdatedAt      = "updated_at" // unix nanoseconds
)

// MilvusClient owns a Milvus connection and the news collection's lifecycle.
type MilvusClient struct {
	Client client.Client
	Config config.MilvusConfig
	Dim    int

	log             *logger.Logger
	cancelAutoFlush context.CancelFunc
}

// New connects to Milvus. The caller owns the returned client and must Close it.
func New(ctx context.Context, cfg config.MilvusConfig, dim int, log *logger.Logger) (*MilvusClient, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus at %s: %w", cfg.Address, err)
	}
	log.Info(fmt.Sprintf("Connected to Milvus at %s", cfg.Address))
	return &MilvusClient{Client: c, Config: cfg, Dim: dim, log: log}, nil
}

// Close stops auto-flush (flushing once more) and closes the connection.
func (c *MilvusClient) Close() error {
	if c.Client == nil {
		return nil
	}
	c.StopAutoFlush(context.Background())
	err := c.Client.Close()
	c.log.Info("Closed Milvus connection")
	return err
}

// HealthCheck lists collections to prove the connection is usable.
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the news collection and its vector index if missing, then loads it.
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", collName, err)
	}
	if !exists {
		c.log.Info(fmt.Sprintf("Creating Milvus collection %q (dim=%d)", collName, c.Dim))
		if err := c.Client.CreateCollection(ctx, c.newsSchema(), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection %q: %w", collName, err)
		}
		idx, err := c.buildIndex()
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index on %q: %w", FieldEmbedding, err)
		}
	}
	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("failed to load collection %q: %w", collName, err)
	}
	return nil
}

func (c *MilvusClient) newsSchema() *entity.Schema {
	varchar := func(name string, maxLen int64) *entity.Field {
		return entity.NewField().WithName(name).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxLen)
	}
	return entity.NewSchema().
		WithName(c.Config.CollectionName).
		WithDescription("news article embeddings").
		WithField(varchar(FieldID, 128).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Dim))).
		WithField(varchar(FieldSymbol, 32)).
		WithField(varchar(FieldTitle, 1024)).
		WithField(varchar(FieldContentPreview, 4096)).
		WithField(entity.NewField().WithName(FieldPublishedAt).WithDataType(entity.FieldTypeInt64)).
		WithField(varchar(FieldSentiment, 16)).
		WithField(entity.NewField().WithName(FieldSentimentScore).WithDataType(entity.FieldTypeDouble)).
		WithField(varchar(FieldSource, 256)).
		WithField(varchar(FieldURL, 2048)).
		WithField(entity.NewField().WithName(FieldUpdatedAt).WithDataType(entity.FieldTypeInt64))
}

// buildIndex returns the configured ANN index, always with the COSINE metric.
func (c *MilvusClient) buildIndex() (entity.Index, error) {
	params := c.Config.IndexParams
	intParam := func(key string, def int) int {
		if v, ok := params[key].(int); ok {
			return v
		}
		return def
	}
	switch c.Config.IndexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(entity.COSINE, intParam("nlist", 128))
	case "HNSW", "":
		return entity.NewIndexHNSW(entity.COSINE, intParam("M", 16), intParam("efConstruction", 200))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8(entity.COSINE, intParam("nlist", 128))
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(entity.COSINE)
	default:
		return nil, fmt.Errorf("unsupported index type: %s", c.Config.IndexType)
	}
}

// SearchParam matches the configured index type.
func (c *MilvusClient) SearchParam() (entity.SearchParam, error) {
	switch c.Config.IndexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlatSearchParam(intOr(c.Config.IndexParams["nprobe"], 16))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8SearchParam(intOr(c.Config.IndexParams["nprobe"], 16))
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEXSearchParam(1)
	default:
		ef := c.Config.SearchEf
		if ef <= 0 {
			ef = 64
		}
		return entity.NewIndexHNSWSearchParam(ef)
	}
}

func intOr(v interface{}, def int) int {
	if n, ok := v.(int); ok {
		return n
	}
	return def
}

// FlushCollection seals pending segments so inserts become searchable.
func (c *MilvusClient) FlushCollection(ctx context.Context) error {
	if err := c.Client.Flush(ctx, c.Config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush collection %q: %w", c.Config.CollectionName, err)
	}
	return nil
}

// StartAutoFlush flushes the collection every interval until StopAutoFlush.
func (c *MilvusClient) StartAutoFlush(interval time.Duration) {
	if c.cancelAutoFlush != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelAutoFlush = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := c.FlushCollection(flushCtx); err != nil {
					c.log.Warn(fmt.Sprintf("Auto flush failed: %v", err))
				}
				flushCancel()
			}
		}
	}()
}

// StopAutoFlush cancels the background flusher and flushes one final time.
func (c *MilvusClient) StopAutoFlush(ctx context.Context) {
	if c.cancelAutoFlush == nil {
		return
	}
	c.cancelAutoFlush()
	c.cancelAutoFlush = nil
	if err := c.FlushCollection(ctx); err != nil {
		c.log.Warn(fmt.Sprintf("Final flush failed: %v", err))
	}
}
