package embed

import (
	"fmt"
)

// Provider names accepted by NewEmbedder.
const (
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Config selects and configures the embedding provider.
type Config struct {
	// Provider is "openai" or "static" (default: openai).
	Provider string

	// OpenAI configures the openai provider.
	OpenAI OpenAIConfig

	// Dimensions is the output dimension for the static provider. The
	// openai provider takes its dimension from OpenAI.Dimensions.
	Dimensions int

	// CacheSize is the LRU embedding cache size. Zero uses the default;
	// negative disables caching.
	CacheSize int

	// Retry configures backoff on transient failures.
	Retry RetryConfig
}

// NewEmbedder builds the configured embedder wrapped with retry, circuit
// breaking, and caching. The static provider skips retry and breaking
// since it cannot fail transiently.
func NewEmbedder(cfg Config) (Embedder, error) {
	var base Embedder

	switch cfg.Provider {
	case ProviderOpenAI, "":
		inner, err := NewOpenAIEmbedder(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
			cfg.Retry = DefaultRetryConfig()
		}
		base = NewBreakerEmbedder(NewRetryEmbedder(inner, cfg.Retry))

	case ProviderStatic:
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = StaticDimensions
		}
		base = NewStaticEmbedderWithDimensions(dims)

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, static)", cfg.Provider)
	}

	if cfg.CacheSize < 0 {
		return base, nil
	}
	return NewCachedEmbedder(base, cfg.CacheSize), nil
}
