package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FlatIndex implements DenseIndex with an exhaustive inner-product scan.
// Exact search is chosen over approximate indexing: at corpus scale
// (thousands of chunks) a full scan is cheap, and exactness keeps
// evaluation runs reproducible.
type FlatIndex struct {
	mu     sync.RWMutex
	config DenseConfig

	ids     []int
	vectors [][]float32
	known   map[int]struct{}

	closed bool
}

// flatSnapshot is the gob persistence format for FlatIndex.
type flatSnapshot struct {
	Dimensions int
	IDs        []int
	Vectors    [][]float32
}

// NewFlatIndex creates an empty exact dense index.
func NewFlatIndex(cfg DenseConfig) (*FlatIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("flat index: dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &FlatIndex{config: cfg}, nil
}

// Add inserts vectors with their chunk ids.
// Each vector is copied and L2-normalized before insertion, so Search's
// inner product equals cosine similarity.
func (s *FlatIndex) Add(ctx context.Context, ids []int, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("flat index: ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("flat index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return DimensionMismatchError{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	if s.known == nil {
		s.known = make(map[int]struct{}, len(ids))
	}
	for _, id := range ids {
		if _, exists := s.known[id]; exists {
			return fmt.Errorf("flat index: chunk %d already indexed", id)
		}
	}

	for i, id := range ids {
		s.known[id] = struct{}{}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, vec)
	}

	return nil
}

// Search scans every stored vector and returns the k highest inner products,
// descending, ties broken by ascending chunk id. The query is normalized
// before scoring, so scores are cosine similarities in [-1, 1].
func (s *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]*DenseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("flat index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, DimensionMismatchError{Expected: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || len(s.ids) == 0 {
		return []*DenseResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	results := make([]*DenseResult, len(s.ids))
	for i, vec := range s.vectors {
		results[i] = &DenseResult{
			ChunkID: s.ids[i],
			Score:   dotProduct(q, vec),
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of indexed vectors.
func (s *FlatIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Dimensions returns the configured vector dimension.
func (s *FlatIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the index with an atomic temp-file-and-rename.
func (s *FlatIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("flat index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	snap := flatSnapshot{
		Dimensions: s.config.Dimensions,
		IDs:        s.ids,
		Vectors:    s.vectors,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

// Load replaces the index contents from disk.
// The on-disk dimension must match the configured dimension.
func (s *FlatIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("flat index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}

	if snap.Dimensions != s.config.Dimensions {
		return DimensionMismatchError{Expected: s.config.Dimensions, Got: snap.Dimensions}
	}

	s.ids = snap.IDs
	s.vectors = snap.Vectors
	s.known = make(map[int]struct{}, len(snap.IDs))
	for _, id := range snap.IDs {
		s.known[id] = struct{}{}
	}
	return nil
}

// Close releases the index.
func (s *FlatIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.ids = nil
	s.vectors = nil
	return nil
}

// Verify interface implementation
var _ DenseIndex = (*FlatIndex)(nil)

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalizeVectorInPlace scales a vector to unit length in place.
// Zero vectors are left untouched.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
