package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ArticlePublisher sends processed articles to the news topic, keyed by article id
// so every version of one article lands on the same partition.
type ArticlePublisher struct {
	writer MessageWriter
}

func NewArticlePublisher(w MessageWriter) *ArticlePublisher {
	return &ArticlePublisher{writer: w}
}

func (p *ArticlePublisher) Publish(ctx context.Context, articles ...models.NewsArticle) error {
	if len(articles) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(articles))
	for _, a := range articles {
		if a.ID == "" {
			return models.InvalidInput("kafka.Publish", "article id is empty")
		}
		body, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal article %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(a.ID), Value: body})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return models.ExternalService("kafka.Publish", err)
	}
	return nil
}
