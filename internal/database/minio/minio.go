package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/internal/rag_service/rag/interfaces"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// New creates a MinIO client and makes sure the bucket exists.
func New(ctx context.Context, cfg *config.MinIOConfig, log *logger.Logger) (*minio.Client, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := c.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("MinIO health check failed: %w", err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		log.Info(fmt.Sprintf("Created MinIO bucket %q", cfg.Bucket))
	}

	log.Info(fmt.Sprintf("Connected to MinIO at %s", cfg.Endpoint))
	return c, nil
}

// HealthCheck lists buckets to verify connectivity and credentials.
func HealthCheck(ctx context.Context, c *minio.Client) error {
	if c == nil {
		return fmt.Errorf("minio client is not initialized")
	}
	if _, err := c.ListBuckets(ctx); err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	return nil
}

// ArticleArchive writes raw ingested articles to a bucket as JSON,
// one object per article under <symbol>/<date>/<id>.json.
type ArticleArchive struct {
	client *minio.Client
	bucket string
}

func NewArticleArchive(c *minio.Client, bucket string) *ArticleArchive {
	return &ArticleArchive{client: c, bucket: bucket}
}

// ObjectKey is the object name an article is archived under.
func ObjectKey(a models.NewsArticle) string {
	symbol := a.Symbol
	if symbol == "" {
		symbol = "_market"
	}
	date := "undated"
	if !a.PublishedAt.IsZero() {
		date = a.PublishedAt.UTC().Format(models.DateLayout)
	}
	return path.Join(symbol, date, a.ID+".json")
}

func (a *ArticleArchive) Put(ctx context.Context, article models.NewsArticle) error {
	body, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("failed to encode article %s: %w", article.ID, err)
	}
	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(article), bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return models.ExternalService("archive.Put", err)
	}
	return nil
}

var _ interfaces.Archive = (*ArticleArchive)(nil)
