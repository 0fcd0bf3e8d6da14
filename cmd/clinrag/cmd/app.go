package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/clinrag/clinrag/internal/config"
	"github.com/clinrag/clinrag/internal/embed"
	"github.com/clinrag/clinrag/internal/search"
	"github.com/clinrag/clinrag/internal/store"
)

// app bundles the wired retrieval components for a command invocation.
type app struct {
	cfg    *config.Config
	engine *search.Engine
	chunks *store.ChunkStore
}

func (a *app) Close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	if a.chunks != nil {
		_ = a.chunks.Close()
	}
}

// chunkStorePath is where the SQLite chunk database lives.
func chunkStorePath(cfg *config.Config) string {
	return filepath.Join(cfg.Data.Dir, "chunks.db")
}

// bm25Config maps the configured sparse scoring knobs onto the index
// config. An unset stop word list keeps the built-in one.
func bm25Config(cfg *config.Config) store.BM25Config {
	bc := store.DefaultBM25Config()
	bc.K1 = cfg.Search.BM25K1
	bc.B = cfg.Search.BM25B
	if len(cfg.Search.StopWords) > 0 {
		bc.StopWords = cfg.Search.StopWords
	}
	return bc
}

// openApp builds the engine from configuration: chunk store, dense and
// sparse indexes (loading persisted state when present), and the
// embedding provider.
func openApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	chunks, err := store.NewChunkStore(chunkStorePath(cfg))
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}

	dense, err := store.NewDenseIndexWithBackend(
		store.DenseIndexBasePath(cfg.Data.Dir),
		store.DefaultDenseConfig(embedder.Dimensions()),
		cfg.Search.DenseBackend,
	)
	if err != nil {
		_ = embedder.Close()
		_ = chunks.Close()
		return nil, err
	}

	sparse, err := store.NewSparseIndexWithBackend(
		store.SparseIndexBasePath(cfg.Data.Dir),
		bm25Config(cfg),
		cfg.Search.SparseBackend,
	)
	if err != nil {
		_ = dense.Close()
		_ = embedder.Close()
		_ = chunks.Close()
		return nil, err
	}

	indexTimeout, err := cfg.Search.ParseIndexTimeout()
	if err != nil {
		indexTimeout = 0
	}

	engine, err := search.NewEngine(dense, sparse, chunks, embedder, search.EngineConfig{
		Alpha:        cfg.Search.Alpha,
		RRFConstant:  cfg.Search.RRFConstant,
		AbsentRank:   cfg.Search.AbsentRank,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		IndexTimeout: indexTimeout,
	})
	if err != nil {
		_ = sparse.Close()
		_ = dense.Close()
		_ = embedder.Close()
		_ = chunks.Close()
		return nil, err
	}

	return &app{cfg: cfg, engine: engine, chunks: chunks}, nil
}

func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	timeout, err := cfg.Embeddings.ParseTimeout()
	if err != nil {
		return nil, fmt.Errorf("embeddings.timeout: %w", err)
	}

	return embed.NewEmbedder(embed.Config{
		Provider: cfg.Embeddings.Provider,
		OpenAI: embed.OpenAIConfig{
			APIKey:     cfg.Embeddings.APIKey,
			BaseURL:    cfg.Embeddings.BaseURL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			Timeout:    timeout,
		},
		Dimensions: cfg.Embeddings.Dimensions,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
}

// saveIndexes persists both indexes under the data directory.
func saveIndexes(a *app) error {
	densePath := store.DenseIndexPath(store.DenseIndexBasePath(a.cfg.Data.Dir), a.cfg.Search.DenseBackend)
	if err := a.engine.SaveDense(densePath); err != nil {
		return fmt.Errorf("save dense index: %w", err)
	}

	sparsePath := store.SparseIndexPath(a.cfg.Data.Dir, a.cfg.Search.SparseBackend)
	if err := a.engine.SaveSparse(sparsePath); err != nil {
		return fmt.Errorf("save sparse index: %w", err)
	}
	return nil
}
