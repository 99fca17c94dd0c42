package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider records inputs and fails the first failures calls.
type fakeProvider struct {
	mu       sync.Mutex
	dim      int
	failures int
	calls    int
	inputs   []string
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, text)
	if f.calls <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return make([]float32, f.dim), nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func testConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Model:        "fake",
		Dimension:    3,
		MaxChars:     10,
		Burst:        1,
		MaxRetries:   2,
		RetryBackoff: "1ms",
	}
}

func TestGeneratorTruncatesDeterministically(t *testing.T) {
	p := &fakeProvider{dim: 3}
	g := NewGenerator(p, testConfig(), logger.Discard())

	_, err := g.Embed(context.Background(), "abcdefghijklmnop")
	require.NoError(t, err)
	_, err = g.Embed(context.Background(), "abcdefghijklmnop")
	require.NoError(t, err)

	assert.Equal(t, []string{"abcdefghij", "abcdefghij"}, p.inputs)
}

func TestGeneratorRejectsEmptyText(t *testing.T) {
	g := NewGenerator(&fakeProvider{dim: 3}, testConfig(), logger.Discard())
	_, err := g.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGeneratorRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{dim: 3, failures: 2}
	g := NewGenerator(p, testConfig(), logger.Discard())

	v, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Equal(t, 3, p.calls)
}

func TestGeneratorGivesUpAsExternalServiceError(t *testing.T) {
	p := &fakeProvider{dim: 3, failures: 10}
	g := NewGenerator(p, testConfig(), logger.Discard())

	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrExternalService)
	assert.True(t, models.Retryable(err))
	assert.Equal(t, 3, p.calls)
}

func TestGeneratorRejectsWrongDimension(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	g := NewGenerator(&fakeProvider{dim: 5}, cfg, logger.Discard())

	_, err := g.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrExternalService)
	assert.Contains(t, err.Error(), "expected 3 dimensions")
}

func TestGeneratorHonoursCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = "1h"
	g := NewGenerator(&fakeProvider{dim: 3, failures: 10}, cfg, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := g.Embed(ctx, "hello")
	assert.ErrorIs(t, err, models.ErrExternalService)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGeneratorEmbedBatch(t *testing.T) {
	g := NewGenerator(&fakeProvider{dim: 3}, testConfig(), logger.Discard())

	out, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = g.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, out)

	_, err = g.EmbedBatch(context.Background(), []string{"a", ""})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestPrepareText(t *testing.T) {
	got := PrepareText("TCS Q3 results", "Revenue grew 4%.", "", []string{"TCS", "Tata Consultancy"})
	want := "Title: TCS Q3 results\n\nSummary: Revenue grew 4%.\n\nContent: Revenue grew 4%.\n\nEntities: TCS, Tata Consultancy"
	assert.Equal(t, want, got)

	long := strings.Repeat("x", 900)
	got = PrepareText("", long, "", nil)
	assert.True(t, strings.HasPrefix(got, "Summary: "+strings.Repeat("x", summaryChars)+"\n\nContent: "))

	assert.Equal(t, "Title: only", PrepareText("only", "", "", nil))
}

func TestHuggingFaceModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sentence-transformers/all-MiniLM-L6-v2", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))
		var body struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		out := make([][]float32, len(body.Inputs))
		for i := range out {
			out[i] = []float32{0.1, 0.2}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	m, err := NewHuggingFaceModel("hf-key", "sentence-transformers/all-MiniLM-L6-v2", srv.URL+"/", time.Second)
	require.NoError(t, err)

	v, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, v)
}

func TestNewEmdModelUnknownProvider(t *testing.T) {
	_, err := NewEmdModel(config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}
