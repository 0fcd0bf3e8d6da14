// Package store provides the retrieval indexes (exact and HNSW dense search,
// in-memory and Bleve BM25 sparse search) and chunk persistence (SQLite).
// Indexes are built once from the chunk corpus and are read-only at query
// time; concurrent queries need no synchronization beyond what each index
// carries for its own lifecycle.
package store

import (
	"context"
	"fmt"
)

// Document is a unit of text submitted to the sparse index.
type Document struct {
	ID   int    // Chunk id
	Text string // Chunk text
}

// DenseResult is a single dense search hit.
// Score is the inner product of unit vectors (cosine similarity, in [-1, 1]).
type DenseResult struct {
	ChunkID int
	Score   float32
}

// SparseResult is a single BM25 search hit.
// Score is a raw BM25 value and is not comparable with dense scores.
type SparseResult struct {
	ChunkID      int
	Score        float64
	MatchedTerms []string
}

// IndexStats describes a sparse index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// DenseIndex performs nearest-neighbor search over embedding vectors.
//
// Results are ordered strictly descending by similarity; equal similarities
// are broken by ascending chunk id so repeated queries return identical
// orderings. Query vectors must be L2-normalized by the caller.
type DenseIndex interface {
	// Add inserts vectors with their chunk ids. Vectors are L2-normalized
	// on insertion so Search similarity equals cosine similarity.
	Add(ctx context.Context, ids []int, vectors [][]float32) error

	// Search returns up to k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*DenseResult, error)

	// Count returns the number of indexed vectors.
	Count() int

	// Dimensions returns the vector dimension the index was built with.
	Dimensions() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// SparseIndex performs lexical search scored by BM25.
//
// The tokenization policy is fixed at construction and applied identically
// to documents and queries; a query with no matching terms returns an empty
// list, not an error. Ordering and tie-breaking follow DenseIndex.
type SparseIndex interface {
	// Index adds documents to the index.
	Index(ctx context.Context, docs []*Document) error

	// Search returns up to limit documents matching the query.
	Search(ctx context.Context, query string, limit int) ([]*SparseResult, error)

	// Stats returns index statistics.
	Stats() *IndexStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures BM25 scoring and tokenization.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2).
	K1 float64

	// B is the document length normalization parameter (default: 0.75).
	B float64

	// StopWords are filtered out during tokenization, for both documents
	// and queries.
	StopWords []string

	// MinTokenLength drops tokens shorter than this (default: 2).
	MinTokenLength int
}

// DefaultBM25Config returns the standard BM25 constants.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DenseConfig configures the dense index.
type DenseConfig struct {
	// Dimensions is the embedding vector dimension.
	Dimensions int

	// M is the HNSW max connections per layer (hnsw backend only).
	M int

	// EfSearch is the HNSW query-time search width (hnsw backend only).
	EfSearch int
}

// DefaultDenseConfig returns dense index defaults for the given dimension.
func DefaultDenseConfig(dimensions int) DenseConfig {
	return DenseConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   40,
	}
}

// State keys persisted in the chunk store, used to detect an embedder change
// between index build and query time.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
	// StateKeyCorpusSize stores the chunk count at build time.
	StateKeyCorpusSize = "index_corpus_size"
)

// DimensionMismatchError indicates a vector dimension that does not match
// the index. This is a fatal configuration error, never retried.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d (rebuild the index with the current embedder)", e.Expected, e.Got)
}
