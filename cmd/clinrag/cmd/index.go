package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinrag/clinrag/internal/config"
	"github.com/clinrag/clinrag/internal/corpus"
	"github.com/clinrag/clinrag/internal/store"
)

type indexOptions struct {
	corpusPath string
	rawPath    string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the dense and sparse indexes from a corpus",
		Long: `Build the retrieval indexes from a chunked corpus JSON file.

With --raw, a cleaned plain-text corpus is parsed into chapters and
chunked first; the resulting chunk file is written to the corpus path.

Examples:
  clinrag index
  clinrag index --corpus data/corpus.json
  clinrag index --raw data/cleaned.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.corpusPath, "corpus", "", "Chunked corpus JSON path (default from config)")
	cmd.Flags().StringVar(&opts.rawPath, "raw", "", "Cleaned plain-text corpus to chunk before indexing")

	return cmd
}

func runIndex(ctx context.Context, opts indexOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.corpusPath == "" {
		opts.corpusPath = cfg.Data.CorpusPath
	}

	// One builder at a time per data directory
	lock := store.NewBuildLock(cfg.Data.Dir)
	held, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire build lock: %w", err)
	}
	if !held {
		return fmt.Errorf("another index build is running (lock: %s)", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	var chunks []*corpus.Chunk
	if opts.rawPath != "" {
		chunks, err = chunkRawCorpus(cfg, opts.rawPath, opts.corpusPath)
	} else {
		chunks, err = corpus.LoadChunks(opts.corpusPath)
	}
	if err != nil {
		return err
	}

	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	slog.Info("index_build_started", "chunks", len(chunks), "dense_backend", cfg.Search.DenseBackend, "sparse_backend", cfg.Search.SparseBackend)
	start := time.Now()

	if err := app.chunks.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	if err := app.engine.Build(ctx, chunks); err != nil {
		return fmt.Errorf("build indexes: %w", err)
	}
	if err := saveIndexes(app); err != nil {
		return err
	}

	stats := app.engine.Stats()
	slog.Info("index_build_complete",
		"chunks", len(chunks),
		"dense_count", stats.DenseCount,
		"sparse_docs", stats.SparseDocs,
		"dimensions", stats.Dimensions,
		"model", stats.Model,
		"elapsed", time.Since(start))

	fmt.Printf("Indexed %d chunks (%d-dim %s embeddings) in %s\n",
		len(chunks), stats.Dimensions, stats.Model, time.Since(start).Round(time.Millisecond))
	return nil
}

// chunkRawCorpus cleans, parses, and chunks a plain-text corpus, then
// writes the chunk file so later builds can skip this step.
func chunkRawCorpus(cfg *config.Config, rawPath, corpusPath string) ([]*corpus.Chunk, error) {
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return nil, fmt.Errorf("read raw corpus: %w", err)
	}

	chapters := corpus.ParseChapters(corpus.CleanText(string(data)))
	if len(chapters) == 0 {
		return nil, fmt.Errorf("no chapters found in %s", rawPath)
	}

	chunker, err := corpus.NewChunker(corpus.ChunkerConfig{
		ChunkSize:      cfg.Chunking.ChunkSize,
		Overlap:        cfg.Chunking.Overlap,
		MinChunkTokens: cfg.Chunking.MinChunkTokens,
	})
	if err != nil {
		return nil, err
	}

	chunks := chunker.ChunkChapters(chapters)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunking produced no chunks from %s", rawPath)
	}
	if err := corpus.SaveChunks(corpusPath, chunks); err != nil {
		return nil, err
	}
	chaptersPath := filepath.Join(cfg.Data.Dir, "chapters.json")
	if err := corpus.SaveChapters(chaptersPath, chapters); err != nil {
		return nil, err
	}

	slog.Info("corpus_chunked", "chapters", len(chapters), "chunks", len(chunks), "corpus_path", corpusPath)
	return chunks, nil
}
