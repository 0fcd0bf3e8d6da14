// Package config loads layered configuration: hardcoded defaults, a
// project config file, then CLINRAG_* environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Data       DataConfig       `yaml:"data" json:"data"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Answer     AnswerConfig     `yaml:"answer" json:"answer"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// DataConfig locates corpus and index artifacts on disk.
type DataConfig struct {
	// Dir is the root data directory. Indexes, the chunk database, and
	// the build lock live under it.
	Dir string `yaml:"dir" json:"dir"`

	// CorpusPath is the chunked corpus JSON file.
	CorpusPath string `yaml:"corpus_path" json:"corpus_path"`

	// GoldQueriesPath is the labeled evaluation query set.
	GoldQueriesPath string `yaml:"gold_queries_path" json:"gold_queries_path"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// Alpha is the dense weight in rank fusion (0.0-1.0). The sparse
	// weight is 1-alpha.
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// RRFConstant is the fusion smoothing parameter k. Higher values
	// reduce the impact of rank differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// DenseBackend selects the dense index: "flat" (exact, default) or
	// "hnsw" (approximate).
	DenseBackend string `yaml:"dense_backend" json:"dense_backend"`

	// SparseBackend selects the BM25 index: "memory" (default) or
	// "bleve".
	SparseBackend string `yaml:"sparse_backend" json:"sparse_backend"`

	// BM25K1 is the term frequency saturation constant.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`

	// BM25B is the document length normalization constant.
	BM25B float64 `yaml:"bm25_b" json:"bm25_b"`

	// StopWords replaces the built-in English stop word list. Leave
	// unset to keep the default list.
	StopWords []string `yaml:"stop_words" json:"stop_words"`

	// AbsentRank fixes the fusion rank charged to a chunk missing from
	// one result list. Zero uses the dynamic penalty
	// max(len(dense), len(sparse)) + 1.
	AbsentRank int `yaml:"absent_rank" json:"absent_rank"`

	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit"`

	// IndexTimeout is a duration string like "10s". Strings keep the
	// YAML human-editable; parse with ParseIndexTimeout.
	IndexTimeout string `yaml:"index_timeout" json:"index_timeout"`
}

// ParseIndexTimeout returns the per-index search timeout.
func (s SearchConfig) ParseIndexTimeout() (time.Duration, error) {
	return time.ParseDuration(s.IndexTimeout)
}

// ParseTimeout returns the per-request embedding timeout.
func (e EmbeddingsConfig) ParseTimeout() (time.Duration, error) {
	return time.ParseDuration(e.Timeout)
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai" or "static". Static is deterministic and
	// offline, for tests and air-gapped evaluation.
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`

	// Timeout is a duration string like "30s".
	Timeout string `yaml:"timeout" json:"timeout"`

	// APIKey is never read from YAML; only the environment supplies it.
	APIKey string `yaml:"-" json:"-"`
}

// ChunkingConfig configures the corpus chunker.
type ChunkingConfig struct {
	ChunkSize      int `yaml:"chunk_size" json:"chunk_size"`
	Overlap        int `yaml:"overlap" json:"overlap"`
	MinChunkTokens int `yaml:"min_chunk_tokens" json:"min_chunk_tokens"`
}

// AnswerConfig configures grounded answer generation.
type AnswerConfig struct {
	Model         string  `yaml:"model" json:"model"`
	ContextChunks int     `yaml:"context_chunks" json:"context_chunks"`
	MaxTokens     int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature   float64 `yaml:"temperature" json:"temperature"`
	BaseURL       string  `yaml:"base_url" json:"base_url"`
}

// NewConfig returns the defaults the system was tuned with.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Data: DataConfig{
			Dir:             "data",
			CorpusPath:      filepath.Join("data", "corpus.json"),
			GoldQueriesPath: filepath.Join("data", "gold_queries.json"),
		},
		Search: SearchConfig{
			// alpha=0.7 won the evaluation sweep over {0.3, 0.5, 0.7}
			Alpha:         0.7,
			RRFConstant:   60,
			DenseBackend:  "flat",
			SparseBackend: "memory",
			BM25K1:        1.2,
			BM25B:         0.75,
			DefaultLimit:  5,
			MaxLimit:      100,
			IndexTimeout:  "10s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-large",
			Dimensions: 1024,
			BatchSize:  32,
			CacheSize:  4096,
			Timeout:    "30s",
		},
		Chunking: ChunkingConfig{
			ChunkSize:      800,
			Overlap:        150,
			MinChunkTokens: 50,
		},
		Answer: AnswerConfig{
			Model:         "gpt-4o-mini",
			ContextChunks: 5,
			MaxTokens:     2000,
			Temperature:   0.25,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration for a project directory, in order of
// increasing precedence: defaults, .clinrag.yaml (or .yml), then
// CLINRAG_* environment variables. The result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".clinrag.yaml", ".clinrag.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Data.Dir != "" {
		c.Data.Dir = other.Data.Dir
	}
	if other.Data.CorpusPath != "" {
		c.Data.CorpusPath = other.Data.CorpusPath
	}
	if other.Data.GoldQueriesPath != "" {
		c.Data.GoldQueriesPath = other.Data.GoldQueriesPath
	}

	if other.Search.Alpha != 0 {
		c.Search.Alpha = other.Search.Alpha
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DenseBackend != "" {
		c.Search.DenseBackend = other.Search.DenseBackend
	}
	if other.Search.SparseBackend != "" {
		c.Search.SparseBackend = other.Search.SparseBackend
	}
	if other.Search.BM25K1 != 0 {
		c.Search.BM25K1 = other.Search.BM25K1
	}
	if other.Search.BM25B != 0 {
		c.Search.BM25B = other.Search.BM25B
	}
	if len(other.Search.StopWords) > 0 {
		c.Search.StopWords = other.Search.StopWords
	}
	if other.Search.AbsentRank != 0 {
		c.Search.AbsentRank = other.Search.AbsentRank
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.IndexTimeout != "" {
		c.Search.IndexTimeout = other.Search.IndexTimeout
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}
	if other.Chunking.MinChunkTokens != 0 {
		c.Chunking.MinChunkTokens = other.Chunking.MinChunkTokens
	}

	if other.Answer.Model != "" {
		c.Answer.Model = other.Answer.Model
	}
	if other.Answer.ContextChunks != 0 {
		c.Answer.ContextChunks = other.Answer.ContextChunks
	}
	if other.Answer.MaxTokens != 0 {
		c.Answer.MaxTokens = other.Answer.MaxTokens
	}
	if other.Answer.Temperature != 0 {
		c.Answer.Temperature = other.Answer.Temperature
	}
	if other.Answer.BaseURL != "" {
		c.Answer.BaseURL = other.Answer.BaseURL
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies CLINRAG_* environment variables, plus the
// API keys which only ever come from the environment.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLINRAG_ALPHA"); v != "" {
		if a, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && a >= 0 && a <= 1 {
			c.Search.Alpha = a
		}
	}
	if v := os.Getenv("CLINRAG_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CLINRAG_DENSE_BACKEND"); v != "" {
		c.Search.DenseBackend = v
	}
	if v := os.Getenv("CLINRAG_SPARSE_BACKEND"); v != "" {
		c.Search.SparseBackend = v
	}
	if v := os.Getenv("CLINRAG_BM25_K1"); v != "" {
		if k1, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && k1 > 0 {
			c.Search.BM25K1 = k1
		}
	}
	if v := os.Getenv("CLINRAG_BM25_B"); v != "" {
		if b, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && b >= 0 && b <= 1 {
			c.Search.BM25B = b
		}
	}
	if v := os.Getenv("CLINRAG_ABSENT_RANK"); v != "" {
		if r, err := strconv.Atoi(v); err == nil && r > 0 {
			c.Search.AbsentRank = r
		}
	}
	if v := os.Getenv("CLINRAG_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("CLINRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CLINRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CLINRAG_EMBEDDINGS_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("CLINRAG_ANSWER_MODEL"); v != "" {
		c.Answer.Model = v
	}
	if v := os.Getenv("CLINRAG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("search.alpha must be between 0 and 1, got %f", c.Search.Alpha)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search limits must be positive, got default=%d max=%d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}

	validDense := map[string]bool{"flat": true, "hnsw": true}
	if !validDense[strings.ToLower(c.Search.DenseBackend)] {
		return fmt.Errorf("search.dense_backend must be 'flat' or 'hnsw', got %s", c.Search.DenseBackend)
	}
	validSparse := map[string]bool{"memory": true, "bleve": true}
	if !validSparse[strings.ToLower(c.Search.SparseBackend)] {
		return fmt.Errorf("search.sparse_backend must be 'memory' or 'bleve', got %s", c.Search.SparseBackend)
	}

	if c.Search.BM25K1 <= 0 {
		return fmt.Errorf("search.bm25_k1 must be positive, got %f", c.Search.BM25K1)
	}
	if c.Search.BM25B < 0 || c.Search.BM25B > 1 {
		return fmt.Errorf("search.bm25_b must be between 0 and 1, got %f", c.Search.BM25B)
	}
	if c.Search.AbsentRank < 0 {
		return fmt.Errorf("search.absent_rank must not be negative, got %d", c.Search.AbsentRank)
	}

	validProviders := map[string]bool{"openai": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'openai' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.ChunkSize, c.Chunking.Overlap)
	}

	if _, err := c.Search.ParseIndexTimeout(); err != nil {
		return fmt.Errorf("search.index_timeout: %w", err)
	}
	if _, err := c.Embeddings.ParseTimeout(); err != nil {
		return fmt.Errorf("embeddings.timeout: %w", err)
	}

	if c.Answer.Temperature < 0 || c.Answer.Temperature > 2 {
		return fmt.Errorf("answer.temperature must be between 0 and 2, got %f", c.Answer.Temperature)
	}
	if math.IsNaN(c.Search.Alpha) {
		return fmt.Errorf("search.alpha is NaN")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
