package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Rishav0123/sentimatix/internal/config"
	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, extra string) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(`
auth:
  apiKey: secret
backend:
  baseURL: http://backend.local/api
embedding:
  provider: openai
  apiKey: sk-test
  dimension: 3
` + extra))
	require.NoError(t, err)
	return cfg
}

func TestBuildInMemoryStack(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t, ""), logger.Discard())
	require.NoError(t, err)

	assert.Len(t, a.Tools.Tools(), 9)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Milvus)
	require.Contains(t, a.Checks, "vector_store")
	assert.NoError(t, a.Checks["vector_store"](context.Background()))

	st, err := a.Retriever.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", st.Backend)
	assert.NoError(t, a.Close())
}

func TestBuildBadgerStack(t *testing.T) {
	cfg := testConfig(t, `
rag:
  vectorBackend: badger
`)
	cfg.Databases.Badger.Path = filepath.Join(t.TempDir(), "vectors")

	a, err := Build(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	st, err := a.Retriever.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "badger", st.Backend)
	assert.NoError(t, a.Close())
}

func TestOpenVectorStoreUnknownBackend(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.RAG.VectorBackend = "faiss"
	_, err := OpenVectorStore(context.Background(), cfg, &App{log: logger.Discard()}, logger.Discard())
	assert.ErrorContains(t, err, "unknown vector backend")
}
