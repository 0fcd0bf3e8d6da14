// Package corpus turns raw reference text into the immutable chunk
// collection the indexes are built from: cleaning, chapter parsing,
// token-window chunking, and JSON corpus I/O.
package corpus

import (
	"fmt"
	"strings"
)

// Chunk is one retrievable unit of text. IDs are sequential integers
// assigned at chunking time and never change afterwards; every index
// and the chunk store key off them.
type Chunk struct {
	ID            int    `json:"id"`
	ChapterNumber int    `json:"chapter_number"`
	ChapterTitle  string `json:"chapter_title"`
	Text          string `json:"content"`
	TokenLength   int    `json:"token_length"`
}

// Label returns a human-readable source label for citations.
func (c *Chunk) Label() string {
	if c.ChapterTitle == "" {
		return fmt.Sprintf("Chapter %d", c.ChapterNumber)
	}
	return fmt.Sprintf("Chapter %d. %s", c.ChapterNumber, c.ChapterTitle)
}

// Chapter is a parsed chapter-level record, the intermediate form
// between cleaned text and chunks.
type Chapter struct {
	Number  int    `json:"chapter_number"`
	Title   string `json:"chapter_title"`
	Content string `json:"content"`
}

// Validate checks the chunk collection invariants: non-empty text,
// unique ids, ids dense from 0.
func Validate(chunks []*Chunk) error {
	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if c == nil {
			return fmt.Errorf("corpus: nil chunk")
		}
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("corpus: chunk %d has empty text", c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("corpus: duplicate chunk id %d", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	for i := range chunks {
		if _, ok := seen[i]; !ok {
			return fmt.Errorf("corpus: chunk ids not dense, missing %d", i)
		}
	}
	return nil
}
