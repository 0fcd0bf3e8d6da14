package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrag/clinrag/internal/store"
)

func denseList(ids ...int) []*store.DenseResult {
	results := make([]*store.DenseResult, len(ids))
	for i, id := range ids {
		results[i] = &store.DenseResult{ChunkID: id, Score: float32(1.0) - float32(i)*0.1}
	}
	return results
}

func sparseList(ids ...int) []*store.SparseResult {
	results := make([]*store.SparseResult, len(ids))
	for i, id := range ids {
		results[i] = &store.SparseResult{ChunkID: id, Score: 10.0 - float64(i)}
	}
	return results
}

func fusedIDs(results []*FusedResult) []int {
	ids := make([]int, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestNewFuser_RejectsInvalidAlpha(t *testing.T) {
	_, err := NewFuser(-0.1, DefaultRRFConstant)
	assert.ErrorIs(t, err, ErrInvalidAlpha)

	_, err = NewFuser(1.1, DefaultRRFConstant)
	assert.ErrorIs(t, err, ErrInvalidAlpha)

	_, err = NewFuser(0, DefaultRRFConstant)
	assert.NoError(t, err)

	_, err = NewFuser(1, DefaultRRFConstant)
	assert.NoError(t, err)
}

func TestFuser_Fuse_EmptyInputsReturnEmptySlice(t *testing.T) {
	f, err := NewFuser(DefaultAlpha, DefaultRRFConstant)
	require.NoError(t, err)

	results := f.Fuse(nil, nil)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuser_Fuse_CombinesBothLists(t *testing.T) {
	// Given: overlapping rankings
	f, err := NewFuser(DefaultAlpha, DefaultRRFConstant)
	require.NoError(t, err)

	dense := denseList(1, 2, 3)
	sparse := sparseList(2, 3, 4)

	// When: fusing
	results := f.Fuse(dense, sparse)

	// Then: every chunk from either list appears exactly once
	require.Len(t, results, 4)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, fusedIDs(results))

	// And: chunk 2 (rank 2 dense, rank 1 sparse) outranks chunk 3
	var chunk2, chunk3 *FusedResult
	for _, r := range results {
		switch r.ChunkID {
		case 2:
			chunk2 = r
		case 3:
			chunk3 = r
		}
	}
	assert.True(t, chunk2.InBothLists)
	assert.Greater(t, chunk2.Score, chunk3.Score)
}

func TestFuser_Fuse_PreservesSourceRanksAndScores(t *testing.T) {
	f, err := NewFuser(DefaultAlpha, DefaultRRFConstant)
	require.NoError(t, err)

	dense := []*store.DenseResult{{ChunkID: 7, Score: 0.92}}
	sparse := []*store.SparseResult{{ChunkID: 7, Score: 5.5, MatchedTerms: []string{"hypertension"}}}

	results := f.Fuse(dense, sparse)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 1, r.DenseRank)
	assert.Equal(t, 1, r.SparseRank)
	assert.InDelta(t, 0.92, r.DenseScore, 1e-6)
	assert.InDelta(t, 5.5, r.SparseScore, 1e-12)
	assert.Equal(t, []string{"hypertension"}, r.MatchedTerms)
	assert.True(t, r.InBothLists)
}

func TestFuser_Fuse_AlphaOneReproducesDenseRanking(t *testing.T) {
	// Given: conflicting rankings
	f, err := NewFuser(1.0, DefaultRRFConstant)
	require.NoError(t, err)

	dense := denseList(5, 3, 8)
	sparse := sparseList(8, 5, 3)

	// When: fusing with alpha=1
	results := f.Fuse(dense, sparse)

	// Then: the dense ordering wins
	assert.Equal(t, []int{5, 3, 8}, fusedIDs(results))
}

func TestFuser_Fuse_AlphaZeroReproducesSparseRanking(t *testing.T) {
	f, err := NewFuser(0.0, DefaultRRFConstant)
	require.NoError(t, err)

	dense := denseList(5, 3, 8)
	sparse := sparseList(8, 5, 3)

	results := f.Fuse(dense, sparse)

	assert.Equal(t, []int{8, 5, 3}, fusedIDs(results))
}

func TestFuser_Fuse_AlphaMonotonicity(t *testing.T) {
	// Given: chunk 1 ranked first by dense, chunk 2 first by sparse
	dense := denseList(1, 2)
	sparse := sparseList(2, 1)

	// When: sweeping alpha upward
	rankOfChunk1 := func(alpha float64) int {
		f, err := NewFuser(alpha, DefaultRRFConstant)
		require.NoError(t, err)
		for i, r := range f.Fuse(dense, sparse) {
			if r.ChunkID == 1 {
				return i
			}
		}
		t.Fatalf("chunk 1 missing at alpha %g", alpha)
		return -1
	}

	// Then: the dense favorite never gets worse as alpha grows
	prev := rankOfChunk1(0.0)
	for _, alpha := range []float64{0.3, 0.5, 0.7, 1.0} {
		cur := rankOfChunk1(alpha)
		assert.LessOrEqual(t, cur, prev, "alpha %g", alpha)
		prev = cur
	}
	assert.Equal(t, 0, rankOfChunk1(1.0))
}

func TestFuser_Fuse_SingleListChunkPenalizedNotDropped(t *testing.T) {
	// Given: a chunk only the sparse index surfaced
	f, err := NewFuser(DefaultAlpha, DefaultRRFConstant)
	require.NoError(t, err)

	dense := denseList(1, 2)
	sparse := sparseList(9)

	// When: fusing
	results := f.Fuse(dense, sparse)

	// Then: the sparse-only chunk is present with a positive score
	require.Len(t, results, 3)
	var chunk9 *FusedResult
	for _, r := range results {
		if r.ChunkID == 9 {
			chunk9 = r
		}
	}
	require.NotNil(t, chunk9)
	assert.Greater(t, chunk9.Score, 0.0)
	assert.Equal(t, 0, chunk9.DenseRank)
	assert.Equal(t, 1, chunk9.SparseRank)

	// And: its dense contribution used the penalty rank max(2,1)+1 = 3
	expected := (1-DefaultAlpha)/float64(DefaultRRFConstant+1) + DefaultAlpha/float64(DefaultRRFConstant+3)
	assert.InDelta(t, expected, chunk9.Score, 1e-12)
}

func TestFuser_Fuse_FixedAbsentRank(t *testing.T) {
	// Given: a fuser with a configured absent-rank penalty
	f, err := NewFuserWithAbsentRank(DefaultAlpha, DefaultRRFConstant, 100)
	require.NoError(t, err)

	dense := denseList(1)
	sparse := sparseList(9)

	// When: fusing
	results := f.Fuse(dense, sparse)

	// Then: missing contributions use rank 100, not max(len)+1
	var chunk1 *FusedResult
	for _, r := range results {
		if r.ChunkID == 1 {
			chunk1 = r
		}
	}
	require.NotNil(t, chunk1)
	expected := DefaultAlpha/float64(DefaultRRFConstant+1) + (1-DefaultAlpha)/float64(DefaultRRFConstant+100)
	assert.InDelta(t, expected, chunk1.Score, 1e-12)
}

func TestNewFuserWithAbsentRank_RejectsInvalidRank(t *testing.T) {
	_, err := NewFuserWithAbsentRank(DefaultAlpha, DefaultRRFConstant, 0)
	assert.Error(t, err)
}

func TestFuser_Fuse_TieBreakFallsBackToChunkID(t *testing.T) {
	// Given: symmetric alpha so two single-list chunks tie exactly
	f, err := NewFuser(0.5, DefaultRRFConstant)
	require.NoError(t, err)

	// Chunk 1: dense rank 1 only. Chunk 2: sparse rank 1 only.
	// Both get score 0.5/(k+1) + 0.5/(k+penalty); identical by symmetry.
	dense := denseList(1)
	sparse := sparseList(2)

	results := f.Fuse(dense, sparse)

	// Then: equal scores with equal list membership fall back to id order
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, 1, results[0].ChunkID)
	assert.Equal(t, 2, results[1].ChunkID)
}

func TestFuser_Fuse_Deterministic(t *testing.T) {
	// Given: a ranking with several ties
	f, err := NewFuser(DefaultAlpha, DefaultRRFConstant)
	require.NoError(t, err)

	dense := denseList(4, 1, 7, 3)
	sparse := sparseList(2, 8, 6, 5)

	// When: fusing repeatedly
	first := fusedIDs(f.Fuse(dense, sparse))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, fusedIDs(f.Fuse(dense, sparse)))
	}
}
