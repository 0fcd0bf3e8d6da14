package embed

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker configuration constants.
const (
	// breakerFailureThreshold trips the breaker after this many
	// consecutive failures.
	breakerFailureThreshold = 5

	// breakerOpenTimeout is how long the breaker stays open before
	// probing again.
	breakerOpenTimeout = 30 * time.Second
)

// BreakerEmbedder wraps an Embedder with a circuit breaker. When the
// embedding API fails repeatedly, further calls fail fast with
// gobreaker.ErrOpenState instead of waiting out timeouts on every query.
type BreakerEmbedder struct {
	inner   Embedder
	breaker *gobreaker.CircuitBreaker[[][]float32]
}

// NewBreakerEmbedder creates a circuit-breaking embedder around inner.
func NewBreakerEmbedder(inner Embedder) *BreakerEmbedder {
	settings := gobreaker.Settings{
		Name:    "embedder",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("embedder_breaker_state_changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &BreakerEmbedder{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[[][]float32](settings),
	}
}

// Embed runs the inner Embed through the breaker.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.breaker.Execute(func() ([][]float32, error) {
		vec, err := b.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs the inner EmbedBatch through the breaker.
func (b *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.breaker.Execute(func() ([][]float32, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (b *BreakerEmbedder) Dimensions() int {
	return b.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (b *BreakerEmbedder) ModelName() string {
	return b.inner.ModelName()
}

// Available reports readiness; an open breaker means unavailable.
func (b *BreakerEmbedder) Available(ctx context.Context) bool {
	if b.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return b.inner.Available(ctx)
}

// Close closes the inner embedder.
func (b *BreakerEmbedder) Close() error {
	return b.inner.Close()
}

// Verify interface implementation
var _ Embedder = (*BreakerEmbedder)(nil)
