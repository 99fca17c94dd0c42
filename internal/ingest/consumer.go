package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer reads NewsArticle JSON from the topic and indexes it in batches.
// Offsets are committed only after their batch was processed.
type Consumer struct {
	reader     MessageReader
	service    *Service
	batchSize  int
	flushEvery time.Duration
	retryDelay time.Duration
	log        *logger.Logger
}

func NewConsumer(reader MessageReader, service *Service, batchSize int, flushEvery time.Duration, log *logger.Logger) *Consumer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	return &Consumer{
		reader:     reader,
		service:    service,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		retryDelay: time.Second,
		log:        log,
	}
}

// Run consumes until ctx is cancelled. Pending messages are left uncommitted
// on shutdown and will be redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	var pending []kafka.Message
	for {
		fetchCtx, cancel := context.WithTimeout(ctx, c.flushEvery)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			if err := c.flush(ctx, pending); err != nil {
				return nil
			}
			pending = pending[:0]
			continue
		case err != nil:
			c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to fetch message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		pending = append(pending, msg)
		if len(pending) >= c.batchSize {
			if err := c.flush(ctx, pending); err != nil {
				return nil
			}
			pending = pending[:0]
		}
	}
}

// flush indexes and commits msgs. Undecodable messages are logged and
// committed so they do not block the partition.
func (c *Consumer) flush(ctx context.Context, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	articles := make([]models.NewsArticle, 0, len(msgs))
	for _, m := range msgs {
		var a models.NewsArticle
		if err := json.Unmarshal(m.Value, &a); err != nil {
			c.log.WithField("offset", m.Offset).WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to unmarshal message")
			continue
		}
		articles = append(articles, a)
	}
	if _, err := c.service.Process(ctx, TriggerKafka, articles); err != nil {
		return err
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error(fmt.Sprintf("Failed to commit %d messages", len(msgs)))
	}
	return nil
}
