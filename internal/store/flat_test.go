package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndex_AddAndSearch_Basic(t *testing.T) {
	// Given: empty 3-dim index
	idx, err := NewFlatIndex(DefaultDenseConfig(3))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// When: add three vectors
	err = idx.Add(context.Background(), []int{0, 1, 2}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	})
	require.NoError(t, err)

	// Then: nearest neighbor of (1,0,0) is chunk 0, then 2, then 1
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].ChunkID)
	assert.Equal(t, 2, results[1].ChunkID)
	assert.Equal(t, 1, results[2].ChunkID)

	// And: scores are descending
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.GreaterOrEqual(t, results[1].Score, results[2].Score)
}

func TestFlatIndex_Search_TiesBreakByAscendingID(t *testing.T) {
	// Given: two identical vectors under different ids, inserted out of order
	idx, err := NewFlatIndex(DefaultDenseConfig(2))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []int{7, 3}, [][]float32{
		{1, 0},
		{1, 0},
	})
	require.NoError(t, err)

	// When: searching
	results, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)

	// Then: equal scores order by ascending chunk id
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, 3, results[0].ChunkID)
	assert.Equal(t, 7, results[1].ChunkID)
}

func TestFlatIndex_Add_RejectsDimensionMismatch(t *testing.T) {
	// Given: 4-dim index
	idx, err := NewFlatIndex(DefaultDenseConfig(4))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// When: adding a 3-dim vector
	err = idx.Add(context.Background(), []int{0}, [][]float32{{1, 0, 0}})

	// Then: a dimension mismatch error identifies both dimensions
	var dimErr DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Got)
}

func TestFlatIndex_Search_RejectsDimensionMismatch(t *testing.T) {
	idx, err := NewFlatIndex(DefaultDenseConfig(4))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	_, err = idx.Search(context.Background(), []float32{1, 0}, 5)

	var dimErr DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)
}

func TestFlatIndex_Search_EmptyIndexReturnsEmpty(t *testing.T) {
	idx, err := NewFlatIndex(DefaultDenseConfig(3))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFlatIndex_Search_KLargerThanCount(t *testing.T) {
	// Given: one vector
	idx, err := NewFlatIndex(DefaultDenseConfig(2))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []int{0}, [][]float32{{1, 0}})
	require.NoError(t, err)

	// When: asking for more than exist
	results, err := idx.Search(context.Background(), []float32{1, 0}, 100)

	// Then: all available vectors are returned, no padding
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFlatIndex_NormalizesStoredAndQueryVectors(t *testing.T) {
	// Given: an unnormalized stored vector
	idx, err := NewFlatIndex(DefaultDenseConfig(2))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []int{0}, [][]float32{{10, 0}})
	require.NoError(t, err)

	// When: searching with an unnormalized query in the same direction
	results, err := idx.Search(context.Background(), []float32{5, 0}, 1)
	require.NoError(t, err)

	// Then: score is the cosine similarity, 1.0
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestFlatIndex_Add_RejectsDuplicateID(t *testing.T) {
	idx, err := NewFlatIndex(DefaultDenseConfig(2))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []int{1}, [][]float32{{1, 0}})
	require.NoError(t, err)

	err = idx.Add(context.Background(), []int{1}, [][]float32{{0, 1}})
	assert.Error(t, err)
}

func TestFlatIndex_SaveAndLoad_Roundtrip(t *testing.T) {
	// Given: a populated index saved to disk
	path := filepath.Join(t.TempDir(), "vectors.flat")

	idx, err := NewFlatIndex(DefaultDenseConfig(3))
	require.NoError(t, err)
	err = idx.Add(context.Background(), []int{0, 1}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	})
	require.NoError(t, err)
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	// When: loading into a fresh index
	loaded, err := NewFlatIndex(DefaultDenseConfig(3))
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()
	require.NoError(t, loaded.Load(path))

	// Then: search results match the original
	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestFlatIndex_Search_AfterCloseFails(t *testing.T) {
	idx, err := NewFlatIndex(DefaultDenseConfig(2))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestNormalizeVectorInPlace_UnitLength(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)

	norm := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	assert.InDelta(t, 1.0, norm, 1e-6)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
}

func TestHNSWIndex_AddAndSearch_Basic(t *testing.T) {
	// Given: empty hnsw index
	idx, err := NewHNSWIndex(DefaultDenseConfig(3))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []int{0, 1, 2}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	})
	require.NoError(t, err)

	// When: searching near (1,0,0)
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)

	// Then: the exact match ranks first
	require.NotEmpty(t, results)
	assert.Equal(t, 0, results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-4)
}

func TestHNSWIndex_Add_RejectsDimensionMismatch(t *testing.T) {
	idx, err := NewHNSWIndex(DefaultDenseConfig(3))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []int{0}, [][]float32{{1, 0}})

	var dimErr DimensionMismatchError
	assert.True(t, errors.As(err, &dimErr))
}
