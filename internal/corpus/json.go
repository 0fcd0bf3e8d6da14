package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveChunks writes the chunk collection as pretty-printed JSON.
// The write is atomic: temp file in the same directory then rename.
func SaveChunks(path string, chunks []*Chunk) error {
	if err := Validate(chunks); err != nil {
		return err
	}

	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp corpus file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write corpus: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close corpus file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename corpus file: %w", err)
	}
	return nil
}

// LoadChunks reads and validates a chunk collection from JSON.
func LoadChunks(path string) ([]*Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var chunks []*Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	if err := Validate(chunks); err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return chunks, nil
}

// SaveChapters writes parsed chapter records as JSON, atomically.
func SaveChapters(path string, chapters []*Chapter) error {
	data, err := json.MarshalIndent(chapters, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chapters: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write chapters: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename chapters file: %w", err)
	}
	return nil
}

// LoadChapters reads chapter records from JSON.
func LoadChapters(path string) ([]*Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chapters: %w", err)
	}
	var chapters []*Chapter
	if err := json.Unmarshal(data, &chapters); err != nil {
		return nil, fmt.Errorf("parse chapters %s: %w", path, err)
	}
	return chapters, nil
}
