// Package search provides hybrid retrieval combining dense semantic search
// and sparse BM25 search. Rankings are merged with weighted Reciprocal
// Rank Fusion.
package search

import (
	"fmt"
	"sort"

	"github.com/clinrag/clinrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains.
const DefaultRRFConstant = 60

// DefaultAlpha is the default dense weight, favoring dense retrieval.
const DefaultAlpha = 0.7

// FusedResult represents a single result after RRF fusion.
type FusedResult struct {
	ChunkID      int      // Chunk identifier
	Score        float64  // Weighted RRF score
	DenseScore   float64  // Original cosine similarity (preserved)
	DenseRank    int      // Position in dense list (1-indexed, 0 if absent)
	SparseScore  float64  // Original BM25 score (preserved)
	SparseRank   int      // Position in sparse list (1-indexed, 0 if absent)
	InBothLists  bool     // Chunk appeared in both result lists
	MatchedTerms []string // Sparse matched terms (for citation display)
}

// Fuser combines dense and sparse rankings using weighted
// Reciprocal Rank Fusion:
//
//	score(d) = alpha/(k + rank_dense) + (1-alpha)/(k + rank_sparse)
//
// where ranks are 1-indexed and a chunk absent from one list takes a
// penalty rank just beyond that list's end, so single-method matches are
// disadvantaged rather than dropped.
type Fuser struct {
	alpha      float64
	k          int
	absentRank int // 0 derives max(len(dense), len(sparse)) + 1
}

// NewFuser creates a fuser with the given dense weight and RRF constant.
// Alpha outside [0, 1] is a configuration error. k <= 0 uses the default.
func NewFuser(alpha float64, k int) (*Fuser, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidAlpha, alpha)
	}
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Fuser{alpha: alpha, k: k}, nil
}

// NewFuserWithAbsentRank creates a fuser with a fixed absent-rank penalty
// instead of the per-query max(len)+1 derivation.
func NewFuserWithAbsentRank(alpha float64, k, absentRank int) (*Fuser, error) {
	f, err := NewFuser(alpha, k)
	if err != nil {
		return nil, err
	}
	if absentRank < 1 {
		return nil, fmt.Errorf("absent rank must be at least 1, got %d", absentRank)
	}
	f.absentRank = absentRank
	return f, nil
}

// Alpha returns the dense weight.
func (f *Fuser) Alpha() float64 { return f.alpha }

// Fuse merges the two rankings. Two empty inputs produce an empty slice,
// not an error.
//
// Results are sorted by: Score (desc) → InBothLists (true first) →
// ChunkID (asc).
func (f *Fuser) Fuse(dense []*store.DenseResult, sparse []*store.SparseResult) []*FusedResult {
	if len(dense) == 0 && len(sparse) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[int]*FusedResult, len(dense)+len(sparse))

	// Dense contributions (1-indexed ranks)
	for rank, r := range dense {
		result := f.getOrCreate(scores, r.ChunkID)
		result.DenseScore = float64(r.Score)
		result.DenseRank = rank + 1
		result.Score += f.alpha / float64(f.k+rank+1)
	}

	// Sparse contributions (1-indexed ranks)
	for rank, r := range sparse {
		result := f.getOrCreate(scores, r.ChunkID)
		result.SparseScore = r.Score
		result.SparseRank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.Score += (1 - f.alpha) / float64(f.k+rank+1)

		if result.DenseRank > 0 {
			result.InBothLists = true
		}
	}

	// Chunks in only one list take the missing source's contribution at
	// the penalty rank.
	missingRank := f.missingRank(len(dense), len(sparse))
	for _, r := range scores {
		if r.DenseRank == 0 {
			r.Score += f.alpha / float64(f.k+missingRank)
		}
		if r.SparseRank == 0 {
			r.Score += (1 - f.alpha) / float64(f.k+missingRank)
		}
	}

	return f.toSortedSlice(scores)
}

// getOrCreate returns the existing result or creates a new one.
func (f *Fuser) getOrCreate(m map[int]*FusedResult, id int) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// missingRank returns the rank assigned to a chunk absent from one list.
func (f *Fuser) missingRank(denseLen, sparseLen int) int {
	if f.absentRank > 0 {
		return f.absentRank
	}
	if denseLen > sparseLen {
		return denseLen + 1
	}
	return sparseLen + 1
}

// toSortedSlice converts the map to a deterministically ordered slice.
func (f *Fuser) toSortedSlice(m map[int]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare implements the ordering contract. Returns true if a ranks
// before b.
//
// Priority:
//  1. Higher fused score
//  2. In both lists (true before false)
//  3. Ascending ChunkID (deterministic)
func (f *Fuser) compare(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	return a.ChunkID < b.ChunkID
}
