package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records calls and can be made to fail a set number of
// times before succeeding.
type countingEmbedder struct {
	calls      atomic.Int64
	failsLeft  atomic.Int64
	dimensions int
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{dimensions: dims}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	if c.failsLeft.Load() > 0 {
		c.failsLeft.Add(-1)
		return nil, errors.New("transient failure")
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, c.dimensions)
		v[int(len(text))%c.dimensions] = 1
		vecs[i] = v
	}
	return vecs, nil
}

func (c *countingEmbedder) Dimensions() int                    { return c.dimensions }
func (c *countingEmbedder) ModelName() string                  { return "counting-test" }
func (c *countingEmbedder) Available(ctx context.Context) bool { return true }
func (c *countingEmbedder) Close() error                       { return nil }

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, err := e.Embed(context.Background(), "hypertension treatment options")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hypertension treatment options")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestStaticEmbedder_ReturnsUnitVectors(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "elevated blood pressure")
	require.NoError(t, err)

	assert.Len(t, vec, StaticDimensions)
	assert.InDelta(t, 1.0, vectorNorm(vec), 1e-6)
}

func TestStaticEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, err := e.Embed(context.Background(), "hypertension")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "diabetes")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	assert.Equal(t, make([]float32, StaticDimensions), vec)
}

func TestStaticEmbedder_CustomDimensions(t *testing.T) {
	e := NewStaticEmbedderWithDimensions(DefaultDimensions)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vec, DefaultDimensions)
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestStaticEmbedder_ClosedFails(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbedderClosed)
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	// Given: a cached embedder
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 16)
	defer func() { _ = cached.Close() }()

	// When: embedding the same text twice
	a, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	b, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)

	// Then: the inner embedder ran once and results match
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, a, b)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	// Given: one text already cached
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 16)
	defer func() { _ = cached.Close() }()

	_, err := cached.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	// When: batch embedding with a mix of hits and misses
	vecs, err := cached.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)

	// Then: order is preserved and only one extra inner call happened
	require.Len(t, vecs, 3)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	inner := newCountingEmbedder(8)
	inner.failsLeft.Store(1)
	cached := NewCachedEmbedder(inner, 16)
	defer func() { _ = cached.Close() }()

	_, err := cached.Embed(context.Background(), "query")
	require.Error(t, err)

	// Failure was not cached; the next call succeeds through the inner
	_, err = cached.Embed(context.Background(), "query")
	assert.NoError(t, err)
}

func TestRetryEmbedder_RecoversFromTransientFailures(t *testing.T) {
	// Given: an embedder that fails twice then succeeds
	inner := newCountingEmbedder(8)
	inner.failsLeft.Store(2)
	retry := NewRetryEmbedder(inner, RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	})
	defer func() { _ = retry.Close() }()

	// When: embedding
	vec, err := retry.Embed(context.Background(), "query")

	// Then: the call eventually succeeds
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	assert.Equal(t, int64(3), inner.calls.Load())
}

func TestRetryEmbedder_GivesUpAfterMaxRetries(t *testing.T) {
	inner := newCountingEmbedder(8)
	inner.failsLeft.Store(100)
	retry := NewRetryEmbedder(inner, RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	})
	defer func() { _ = retry.Close() }()

	_, err := retry.Embed(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, int64(3), inner.calls.Load()) // initial + 2 retries
}

func TestRetryEmbedder_ContextCancellation(t *testing.T) {
	inner := newCountingEmbedder(8)
	inner.failsLeft.Store(100)
	retry := NewRetryEmbedder(inner, DefaultRetryConfig())
	defer func() { _ = retry.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retry.Embed(ctx, "query")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreakerEmbedder_PassesThroughOnSuccess(t *testing.T) {
	inner := newCountingEmbedder(8)
	breaker := NewBreakerEmbedder(inner)
	defer func() { _ = breaker.Close() }()

	vec, err := breaker.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	assert.True(t, breaker.Available(context.Background()))
}

func TestBreakerEmbedder_OpensAfterConsecutiveFailures(t *testing.T) {
	// Given: an embedder that always fails
	inner := newCountingEmbedder(8)
	inner.failsLeft.Store(1000)
	breaker := NewBreakerEmbedder(inner)
	defer func() { _ = breaker.Close() }()

	// When: failing past the threshold
	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := breaker.Embed(context.Background(), fmt.Sprintf("query %d", i))
		require.Error(t, err)
	}

	// Then: the breaker is open and fails fast without calling the inner
	callsBefore := inner.calls.Load()
	_, err := breaker.Embed(context.Background(), "another query")
	require.Error(t, err)
	assert.Equal(t, callsBefore, inner.calls.Load())
	assert.False(t, breaker.Available(context.Background()))
}

func TestNewEmbedder_StaticProvider(t *testing.T) {
	e, err := NewEmbedder(Config{Provider: ProviderStatic, Dimensions: 64})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, 64, e.Dimensions())

	vec, err := e.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}

func TestNewEmbedder_OpenAIRequiresKey(t *testing.T) {
	_, err := NewEmbedder(Config{Provider: ProviderOpenAI})
	assert.Error(t, err)
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(Config{Provider: "bedrock"})
	assert.Error(t, err)
}

func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := normalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}
