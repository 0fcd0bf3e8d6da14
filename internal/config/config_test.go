package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.7, cfg.Search.Alpha)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "flat", cfg.Search.DenseBackend)
	assert.Equal(t, 1.2, cfg.Search.BM25K1)
	assert.Equal(t, 0.75, cfg.Search.BM25B)
	assert.Equal(t, 0, cfg.Search.AbsentRank)
	assert.Empty(t, cfg.Search.StopWords)
	assert.Equal(t, 1024, cfg.Embeddings.Dimensions)
	assert.Equal(t, 800, cfg.Chunking.ChunkSize)
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search.Alpha, cfg.Search.Alpha)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
search:
  alpha: 0.5
  dense_backend: hnsw
  bm25_k1: 1.5
  bm25_b: 0.6
  absent_rank: 200
  stop_words: [the, of]
embeddings:
  dimensions: 256
  provider: static
chunking:
  chunk_size: 400
  overlap: 80
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".clinrag.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Search.Alpha)
	assert.Equal(t, "hnsw", cfg.Search.DenseBackend)
	assert.Equal(t, 1.5, cfg.Search.BM25K1)
	assert.Equal(t, 0.6, cfg.Search.BM25B)
	assert.Equal(t, 200, cfg.Search.AbsentRank)
	assert.Equal(t, []string{"the", "of"}, cfg.Search.StopWords)
	assert.Equal(t, 256, cfg.Embeddings.Dimensions)
	assert.Equal(t, 400, cfg.Chunking.ChunkSize)

	// Untouched fields keep defaults
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 2000, cfg.Answer.MaxTokens)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".clinrag.yaml"), []byte("search:\n  alpha: 0.5\n"), 0o644))

	t.Setenv("CLINRAG_ALPHA", "0.3")
	t.Setenv("CLINRAG_SPARSE_BACKEND", "bleve")
	t.Setenv("CLINRAG_BM25_K1", "2.0")
	t.Setenv("CLINRAG_BM25_B", "0.5")
	t.Setenv("CLINRAG_ABSENT_RANK", "150")
	t.Setenv("OPENAI_API_KEY", "test-key")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.3, cfg.Search.Alpha)
	assert.Equal(t, "bleve", cfg.Search.SparseBackend)
	assert.Equal(t, 2.0, cfg.Search.BM25K1)
	assert.Equal(t, 0.5, cfg.Search.BM25B)
	assert.Equal(t, 150, cfg.Search.AbsentRank)
	assert.Equal(t, "test-key", cfg.Embeddings.APIKey)
}

func TestLoad_InvalidEnvValueIgnored(t *testing.T) {
	t.Setenv("CLINRAG_ALPHA", "1.7")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Search.Alpha)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".clinrag.yaml"), []byte("search: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha above one", func(c *Config) { c.Search.Alpha = 1.2 }},
		{"alpha negative", func(c *Config) { c.Search.Alpha = -0.1 }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"default limit above max", func(c *Config) { c.Search.DefaultLimit = 500 }},
		{"unknown dense backend", func(c *Config) { c.Search.DenseBackend = "faiss" }},
		{"unknown sparse backend", func(c *Config) { c.Search.SparseBackend = "lucene" }},
		{"zero bm25 k1", func(c *Config) { c.Search.BM25K1 = 0 }},
		{"bm25 b above one", func(c *Config) { c.Search.BM25B = 1.1 }},
		{"negative absent rank", func(c *Config) { c.Search.AbsentRank = -1 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"overlap >= chunk size", func(c *Config) { c.Chunking.Overlap = c.Chunking.ChunkSize }},
		{"unparseable index timeout", func(c *Config) { c.Search.IndexTimeout = "soon" }},
		{"unparseable embed timeout", func(c *Config) { c.Embeddings.Timeout = "later" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".clinrag.yaml")

	cfg := NewConfig()
	cfg.Search.Alpha = 0.3
	cfg.Search.IndexTimeout = "5s"
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.3, loaded.Search.Alpha)

	timeout, err := loaded.Search.ParseIndexTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
}
