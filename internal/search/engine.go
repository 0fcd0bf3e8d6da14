package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinrag/clinrag/internal/corpus"
	"github.com/clinrag/clinrag/internal/embed"
	"github.com/clinrag/clinrag/internal/store"
)

// Engine is the retrieval orchestrator. It runs the dense and sparse
// indexes in parallel, fuses their rankings, and returns top-k chunks
// with provenance. Indexes are read-only after Build, so concurrent
// Retrieve calls need no additional synchronization.
type Engine struct {
	dense    store.DenseIndex
	sparse   store.SparseIndex
	chunks   ChunkSource
	embedder embed.Embedder
	config   EngineConfig
	fuser    *Fuser
	mu       sync.RWMutex
}

// NewEngine creates a retrieval engine with the given dependencies.
// Returns an error if any required dependency is nil or the configured
// alpha is invalid.
func NewEngine(
	dense store.DenseIndex,
	sparse store.SparseIndex,
	chunks ChunkSource,
	embedder embed.Embedder,
	config EngineConfig,
) (*Engine, error) {
	if dense == nil {
		return nil, fmt.Errorf("%w: dense index is required", ErrNilDependency)
	}
	if sparse == nil {
		return nil, fmt.Errorf("%w: sparse index is required", ErrNilDependency)
	}
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk source is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	if config.RRFConstant <= 0 {
		config.RRFConstant = DefaultRRFConstant
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultEngineConfig().DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = DefaultEngineConfig().MaxLimit
	}

	fuser, err := newFuserForConfig(config, config.Alpha)
	if err != nil {
		return nil, err
	}

	return &Engine{
		dense:    dense,
		sparse:   sparse,
		chunks:   chunks,
		embedder: embedder,
		config:   config,
		fuser:    fuser,
	}, nil
}

func newFuserForConfig(config EngineConfig, alpha float64) (*Fuser, error) {
	if config.AbsentRank > 0 {
		return NewFuserWithAbsentRank(alpha, config.RRFConstant, config.AbsentRank)
	}
	return NewFuser(alpha, config.RRFConstant)
}

// Retrieve runs a hybrid retrieval for the query and returns up to
// opts.Limit results, descending by fused score with deterministic
// tie-breaking. An embedding failure fails the whole retrieval; a sparse
// list with no lexical matches is a valid empty list and fusion proceeds
// dense-only.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) ([]*Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return []*Result{}, nil
	}

	opts = e.applyDefaults(opts)

	fuser := e.fuser
	if opts.Alpha != nil {
		var err error
		fuser, err = newFuserForConfig(e.config, *opts.Alpha)
		if err != nil {
			return nil, err
		}
	}

	if err := e.validateDimensions(ctx); err != nil {
		return nil, err
	}

	switch opts.Mode {
	case ModeDense:
		return e.denseOnly(ctx, query, opts)
	case ModeSparse:
		return e.sparseOnly(ctx, query, opts)
	}

	// Retrieve more candidates than k from each index so fusion can
	// promote chunks ranked just below the cutoff in a single list.
	candidates := opts.Limit * 2

	denseResults, sparseResults, err := e.parallelSearch(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	fused := fuser.Fuse(denseResults, sparseResults)
	if len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}

	results, err := e.enrichResults(ctx, fused)
	if err != nil {
		return nil, err
	}

	slog.Debug("retrieve_complete",
		slog.String("query", query),
		slog.Float64("alpha", fuser.Alpha()),
		slog.Int("dense_candidates", len(denseResults)),
		slog.Int("sparse_candidates", len(sparseResults)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// applyDefaults fills in default values for retrieval options.
func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	return opts
}

// validateDimensions checks the embedder against the dimension the indexes
// were built with. A mismatch is a configuration error: scores against a
// differently-built index are meaningless, so retrieval fails fast rather
// than degrading.
func (e *Engine) validateDimensions(ctx context.Context) error {
	storedDim, err := e.chunks.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil || storedDim == "" {
		// No stored dimension: first build or legacy index.
		return nil
	}

	var indexDim int
	if _, err := fmt.Sscanf(storedDim, "%d", &indexDim); err != nil {
		slog.Warn("invalid stored index dimension", slog.String("value", storedDim))
		return nil
	}

	currentDim := e.embedder.Dimensions()
	if indexDim != currentDim {
		storedModel, _ := e.chunks.GetState(ctx, store.StateKeyIndexModel)
		return fmt.Errorf("%w: index built with %d dimensions (%s), current embedder produces %d (%s); rebuild the index",
			ErrDimensionMismatch, indexDim, storedModel, currentDim, e.embedder.ModelName())
	}

	return nil
}

// parallelSearch runs the dense and sparse queries concurrently and joins
// on both. The embedding call failing fails the retrieval. A per-index
// deadline expiring treats that index's list as empty so fusion is never
// blocked indefinitely.
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int) (
	denseResults []*store.DenseResult,
	sparseResults []*store.SparseResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vector, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			return fmt.Errorf("embed query: %w", embedErr)
		}

		results, searchErr := e.searchDense(gctx, vector, limit)
		if searchErr != nil {
			return fmt.Errorf("dense search: %w", searchErr)
		}
		denseResults = results
		return nil
	})

	g.Go(func() error {
		results, searchErr := e.searchSparse(gctx, query, limit)
		if searchErr != nil {
			return fmt.Errorf("sparse search: %w", searchErr)
		}
		sparseResults = results
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	return denseResults, sparseResults, nil
}

// searchDense queries the dense index under the per-index deadline.
func (e *Engine) searchDense(ctx context.Context, vector []float32, limit int) ([]*store.DenseResult, error) {
	queryCtx, cancel, bounded := e.indexContext(ctx)
	defer cancel()

	results, err := e.dense.Search(queryCtx, vector, limit)
	if bounded && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		slog.Warn("dense_search_timeout", slog.Duration("timeout", e.config.IndexTimeout))
		return []*store.DenseResult{}, nil
	}
	return results, err
}

// searchSparse queries the sparse index under the per-index deadline.
func (e *Engine) searchSparse(ctx context.Context, query string, limit int) ([]*store.SparseResult, error) {
	queryCtx, cancel, bounded := e.indexContext(ctx)
	defer cancel()

	results, err := e.sparse.Search(queryCtx, query, limit)
	if bounded && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		slog.Warn("sparse_search_timeout", slog.Duration("timeout", e.config.IndexTimeout))
		return []*store.SparseResult{}, nil
	}
	return results, err
}

// indexContext derives the per-index query context. The third return
// reports whether a deadline was applied.
func (e *Engine) indexContext(ctx context.Context) (context.Context, context.CancelFunc, bool) {
	if e.config.IndexTimeout <= 0 {
		return ctx, func() {}, false
	}
	queryCtx, cancel := context.WithTimeout(ctx, e.config.IndexTimeout)
	return queryCtx, cancel, true
}

// denseOnly ranks by the dense index alone.
func (e *Engine) denseOnly(ctx context.Context, query string, opts Options) ([]*Result, error) {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	denseResults, err := e.searchDense(ctx, vector, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}

	fused := make([]*FusedResult, len(denseResults))
	for i, r := range denseResults {
		fused[i] = &FusedResult{
			ChunkID:    r.ChunkID,
			Score:      float64(r.Score),
			DenseScore: float64(r.Score),
			DenseRank:  i + 1,
		}
	}
	return e.enrichResults(ctx, fused)
}

// sparseOnly ranks by the sparse index alone.
func (e *Engine) sparseOnly(ctx context.Context, query string, opts Options) ([]*Result, error) {
	sparseResults, err := e.searchSparse(ctx, query, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	fused := make([]*FusedResult, len(sparseResults))
	for i, r := range sparseResults {
		fused[i] = &FusedResult{
			ChunkID:      r.ChunkID,
			Score:        r.Score,
			SparseScore:  r.Score,
			SparseRank:   i + 1,
			MatchedTerms: r.MatchedTerms,
		}
	}
	return e.enrichResults(ctx, fused)
}

// enrichResults fetches full chunk records in one batch query, preserving
// fused order.
func (e *Engine) enrichResults(ctx context.Context, fused []*FusedResult) ([]*Result, error) {
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	ids := make([]int, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}

	chunkByID, err := e.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}

	results := make([]*Result, 0, len(fused))
	for _, f := range fused {
		chunk, ok := chunkByID[f.ChunkID]
		if !ok {
			// An index referencing a chunk the store lacks means the
			// builds diverged; surface it rather than silently dropping.
			return nil, fmt.Errorf("chunk %d present in index but missing from store", f.ChunkID)
		}

		results = append(results, &Result{
			Chunk:        chunk,
			Score:        f.Score,
			DenseScore:   f.DenseScore,
			SparseScore:  f.SparseScore,
			DenseRank:    f.DenseRank,
			SparseRank:   f.SparseRank,
			InBothLists:  f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
	}

	return results, nil
}

// Build indexes chunks into both indexes and records the build state.
// Chunks must already be stored in the chunk source; both indexes are
// built from the same id space.
func (e *Engine) Build(ctx context.Context, chunks []*corpus.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs := make([]*store.Document, len(chunks))
	texts := make([]string, len(chunks))
	ids := make([]int, len(chunks))
	for i, c := range chunks {
		docs[i] = &store.Document{ID: c.ID, Text: c.Text}
		texts[i] = c.Text
		ids[i] = c.ID
	}

	// Embed in batches to respect API request limits.
	for start := 0; start < len(texts); start += embed.DefaultBatchSize {
		end := start + embed.DefaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if err := e.dense.Add(ctx, ids[start:end], vectors); err != nil {
			return fmt.Errorf("add vectors: %w", err)
		}

		slog.Debug("chunks_embedded",
			slog.Int("from", start),
			slog.Int("to", end-1),
			slog.Int("total", len(texts)))
	}

	if err := e.sparse.Index(ctx, docs); err != nil {
		return fmt.Errorf("index sparse: %w", err)
	}

	return e.storeBuildState(ctx, len(chunks))
}

// storeBuildState records the embedder configuration the indexes were
// built with, enabling mismatch detection at query time.
func (e *Engine) storeBuildState(ctx context.Context, corpusSize int) error {
	if err := e.chunks.SetState(ctx, store.StateKeyIndexDimension, fmt.Sprintf("%d", e.embedder.Dimensions())); err != nil {
		return fmt.Errorf("store index dimension: %w", err)
	}
	if err := e.chunks.SetState(ctx, store.StateKeyIndexModel, e.embedder.ModelName()); err != nil {
		return fmt.Errorf("store index model: %w", err)
	}
	if err := e.chunks.SetState(ctx, store.StateKeyCorpusSize, fmt.Sprintf("%d", corpusSize)); err != nil {
		return fmt.Errorf("store corpus size: %w", err)
	}
	return nil
}

// SaveDense persists the dense index to the given path.
func (e *Engine) SaveDense(path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dense.Save(path)
}

// SaveSparse persists the sparse index to the given path.
func (e *Engine) SaveSparse(path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sparse.Save(path)
}

// Stats returns engine statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sparseStats := e.sparse.Stats()
	return &EngineStats{
		DenseCount:  e.dense.Count(),
		SparseDocs:  sparseStats.DocumentCount,
		SparseTerms: sparseStats.TermCount,
		Dimensions:  e.embedder.Dimensions(),
		Model:       e.embedder.ModelName(),
	}
}

// Close releases the indexes and the embedder.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.dense.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.sparse.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
