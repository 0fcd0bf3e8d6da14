package search

import (
	"context"
	"errors"
	"time"

	"github.com/clinrag/clinrag/internal/corpus"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ErrInvalidAlpha is returned when the fusion weight is outside [0, 1].
var ErrInvalidAlpha = errors.New("alpha must be in [0, 1]")

// ErrDimensionMismatch is returned when the embedder's dimension does not
// match the dimension the indexes were built with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Mode selects which indexes participate in a retrieval.
type Mode string

const (
	// ModeHybrid fuses dense and sparse rankings (default).
	ModeHybrid Mode = "hybrid"

	// ModeDense ranks by the dense index alone. Used for evaluation
	// baselines.
	ModeDense Mode = "dense"

	// ModeSparse ranks by the sparse index alone. Used for evaluation
	// baselines.
	ModeSparse Mode = "sparse"
)

// Options configures a single retrieval.
type Options struct {
	// Limit is the number of results to return (top-k).
	Limit int

	// Alpha overrides the configured fusion weight for this query.
	// Nil uses the engine default.
	Alpha *float64

	// Mode selects hybrid, dense-only, or sparse-only retrieval.
	// Empty means hybrid.
	Mode Mode
}

// Result is one retrieved chunk with its fused score and provenance.
type Result struct {
	// Chunk is the full chunk record.
	Chunk *corpus.Chunk

	// Score is the fused score the ranking is ordered by.
	Score float64

	// DenseScore is the cosine similarity from the dense index, when the
	// chunk appeared there.
	DenseScore float64

	// SparseScore is the BM25 score from the sparse index, when the chunk
	// appeared there.
	SparseScore float64

	// DenseRank is the 1-based position in the dense list, 0 if absent.
	DenseRank int

	// SparseRank is the 1-based position in the sparse list, 0 if absent.
	SparseRank int

	// InBothLists reports whether both indexes surfaced the chunk.
	InBothLists bool

	// MatchedTerms are the sparse index's matched query terms, for
	// citation display.
	MatchedTerms []string
}

// EngineConfig configures the retrieval engine.
type EngineConfig struct {
	// Alpha weights dense over sparse in fusion (default: 0.7).
	Alpha float64

	// RRFConstant dampens rank differences among top results (default: 60).
	RRFConstant int

	// AbsentRank is the rank assigned to a chunk missing from one list.
	// Zero derives max(len(dense), len(sparse)) + 1 per query.
	AbsentRank int

	// DefaultLimit is the top-k when Options.Limit is unset.
	DefaultLimit int

	// MaxLimit caps Options.Limit.
	MaxLimit int

	// IndexTimeout bounds each index query. On expiry that index's list
	// is treated as empty rather than failing the retrieval. Zero
	// disables the per-index deadline.
	IndexTimeout time.Duration
}

// DefaultEngineConfig returns the standard retrieval configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Alpha:        DefaultAlpha,
		RRFConstant:  DefaultRRFConstant,
		DefaultLimit: 5,
		MaxLimit:     100,
	}
}

// ChunkSource provides chunk records and build-state metadata. Satisfied
// by store.ChunkStore.
type ChunkSource interface {
	GetChunks(ctx context.Context, ids []int) (map[int]*corpus.Chunk, error)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
}

// EngineStats summarizes engine state.
type EngineStats struct {
	DenseCount  int
	SparseDocs  int
	SparseTerms int
	Dimensions  int
	Model       string
}
