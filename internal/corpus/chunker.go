package corpus

import (
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize is the window size in tokens.
	DefaultChunkSize = 800

	// DefaultOverlap is how many tokens consecutive windows share.
	DefaultOverlap = 150

	// DefaultMinChunkTokens drops tiny trailing windows that carry too
	// little context to retrieve well.
	DefaultMinChunkTokens = 50
)

// ChunkerConfig controls the sliding-window chunker.
type ChunkerConfig struct {
	ChunkSize      int
	Overlap        int
	MinChunkTokens int
}

// DefaultChunkerConfig returns the production window parameters.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:      DefaultChunkSize,
		Overlap:        DefaultOverlap,
		MinChunkTokens: DefaultMinChunkTokens,
	}
}

// Chunker splits chapters into fixed-size overlapping token windows.
// Tokens are whitespace-delimited words; chapter boundaries are never
// crossed. Chunk ids are assigned sequentially across the whole corpus
// in chapter order, so re-chunking the same input yields the same ids.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker validates the window parameters. Overlap must be strictly
// smaller than the chunk size or the window never advances.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", cfg.ChunkSize, cfg.Overlap)
	}
	if cfg.MinChunkTokens < 0 {
		return nil, fmt.Errorf("chunker: min chunk tokens must not be negative, got %d", cfg.MinChunkTokens)
	}
	return &Chunker{config: cfg}, nil
}

// ChunkChapters chunks every chapter and assigns global sequential ids.
func (ck *Chunker) ChunkChapters(chapters []*Chapter) []*Chunk {
	var chunks []*Chunk
	nextID := 0
	for _, ch := range chapters {
		for _, window := range ck.windows(ch.Content) {
			chunks = append(chunks, &Chunk{
				ID:            nextID,
				ChapterNumber: ch.Number,
				ChapterTitle:  ch.Title,
				Text:          strings.Join(window, " "),
				TokenLength:   len(window),
			})
			nextID++
		}
	}
	return chunks
}

// windows slides a fixed-size window over the chapter's tokens,
// stepping by ChunkSize-Overlap. A trailing window below the minimum
// size is dropped rather than emitted as a fragment.
func (ck *Chunker) windows(content string) [][]string {
	tokens := strings.Fields(content)
	var out [][]string

	step := ck.config.ChunkSize - ck.config.Overlap
	for start := 0; start < len(tokens); start += step {
		end := start + ck.config.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		if end-start < ck.config.MinChunkTokens {
			break
		}
		out = append(out, tokens[start:end])
		if end == len(tokens) {
			break
		}
	}
	return out
}
