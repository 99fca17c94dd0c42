package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"golang.org/x/time/rate"
)

// Generator puts input preparation, throttling, retries and output checks
// around a raw provider. It is what the rest of the service embeds with.
type Generator struct {
	provider   Embedding
	model      string
	dimension  int
	maxChars   int
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	log        *logger.Logger
}

// NewGenerator wraps provider using the limits in cfg.
func NewGenerator(provider Embedding, cfg config.EmbeddingConfig, log *logger.Logger) *Generator {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Generator{
		provider:   provider,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		maxChars:   cfg.MaxChars,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: cfg.MaxRetries,
		backoff:    config.Duration(cfg.RetryBackoff, 500*time.Millisecond),
		log:        log,
	}
}

// Model is the provider model name.
func (g *Generator) Model() string { return g.model }

// Dimension is the vector length every output is checked against.
func (g *Generator) Dimension() int { return g.dimension }

// Embed returns the vector for text. Blank text is invalid input; provider
// failures and wrong-sized vectors are external service errors.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "embedding.Embed"
	if strings.TrimSpace(text) == "" {
		return nil, models.InvalidInput(op, "text cannot be empty")
	}
	text = g.truncate(text)

	var vec []float32
	err := g.withRetry(ctx, op, func() error {
		v, err := g.provider.Embed(ctx, text)
		if err != nil {
			return err
		}
		if err := g.checkDimension(v); err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.log.Debug(fmt.Sprintf("generated embedding of dimension %d", len(vec)))
	return vec, nil
}

// EmbedBatch embeds texts in one provider call. Blank entries are invalid input.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.EmbedBatch"
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	prepared := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, models.InvalidInput(op, "text %d is empty", i)
		}
		prepared[i] = g.truncate(t)
	}

	var out [][]float32
	err := g.withRetry(ctx, op, func() error {
		vs, err := g.provider.EmbedBatch(ctx, prepared)
		if err != nil {
			return err
		}
		if len(vs) != len(prepared) {
			return fmt.Errorf("provider returned %d vectors for %d texts", len(vs), len(prepared))
		}
		for _, v := range vs {
			if err := g.checkDimension(v); err != nil {
				return err
			}
		}
		out = vs
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.log.Info(fmt.Sprintf("generated %d embeddings in batch", len(out)))
	return out, nil
}

func (g *Generator) truncate(text string) string {
	if g.maxChars <= 0 {
		return text
	}
	return Truncate(text, g.maxChars)
}

func (g *Generator) checkDimension(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("provider returned an empty vector")
	}
	if g.dimension > 0 && len(v) != g.dimension {
		return fmt.Errorf("expected %d dimensions, got %d", g.dimension, len(v))
	}
	return nil
}

// withRetry runs call until it succeeds, the retry budget is spent or ctx ends.
// Every failure is reported as an external service error.
func (g *Generator) withRetry(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			wait := g.backoff << (attempt - 1)
			g.log.Warn(fmt.Sprintf("%s attempt %d failed, retrying in %s: %v", op, attempt, wait, lastErr))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return models.ExternalService(op, ctx.Err())
			case <-timer.C:
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return models.ExternalService(op, err)
		}
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	g.log.Error(fmt.Sprintf("%s failed after %d attempts: %v", op, g.maxRetries+1, lastErr))
	return models.ExternalService(op, lastErr)
}

var _ Embedding = (*Generator)(nil)
