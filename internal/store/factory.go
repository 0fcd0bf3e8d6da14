package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// SparseBackend represents the sparse index backend type.
type SparseBackend string

const (
	// SparseBackendMemory uses the in-memory BM25 index (default).
	// Exact k1/b control and explicit tokenization, persisted via gob.
	SparseBackendMemory SparseBackend = "memory"

	// SparseBackendBleve uses Bleve v2. Its own scoring, exclusive file
	// locking via BoltDB, single process only.
	SparseBackendBleve SparseBackend = "bleve"
)

// DenseBackend represents the dense index backend type.
type DenseBackend string

const (
	// DenseBackendFlat scans every vector for exact inner-product
	// ranking (default).
	DenseBackendFlat DenseBackend = "flat"

	// DenseBackendHNSW trades exactness for sub-linear search on large
	// corpora.
	DenseBackendHNSW DenseBackend = "hnsw"
)

// NewSparseIndexWithBackend creates a SparseIndex using the specified
// backend. The path should be the base path without extension; the
// extension is added based on the backend type (.gob for memory, .bleve
// for Bleve).
func NewSparseIndexWithBackend(basePath string, config BM25Config, backend string) (SparseIndex, error) {
	switch backend {
	case string(SparseBackendMemory), "":
		idx, err := NewMemoryBM25Index(config)
		if err != nil {
			return nil, err
		}
		if basePath != "" {
			path := basePath + ".gob"
			if fileExists(path) {
				if err := idx.Load(path); err != nil {
					return nil, fmt.Errorf("load sparse index: %w", err)
				}
			}
		}
		return idx, nil

	case string(SparseBackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveBM25Index(path, config)

	default:
		return nil, fmt.Errorf("unknown sparse backend: %s (valid options: memory, bleve)", backend)
	}
}

// NewDenseIndexWithBackend creates a DenseIndex using the specified
// backend. If basePath is non-empty and an index file exists there, it is
// loaded.
func NewDenseIndexWithBackend(basePath string, config DenseConfig, backend string) (DenseIndex, error) {
	var idx DenseIndex
	var err error

	switch backend {
	case string(DenseBackendFlat), "":
		idx, err = NewFlatIndex(config)
	case string(DenseBackendHNSW):
		idx, err = NewHNSWIndex(config)
	default:
		return nil, fmt.Errorf("unknown dense backend: %s (valid options: flat, hnsw)", backend)
	}
	if err != nil {
		return nil, err
	}

	if basePath != "" {
		path := DenseIndexPath(basePath, backend)
		if fileExists(path) {
			if err := idx.Load(path); err != nil {
				_ = idx.Close()
				return nil, fmt.Errorf("load dense index: %w", err)
			}
		}
	}
	return idx, nil
}

// DetectSparseBackend detects which backend an existing sparse index uses
// based on file existence. Returns an empty string if no index exists.
func DetectSparseBackend(basePath string) SparseBackend {
	if fileExists(basePath + ".gob") {
		return SparseBackendMemory
	}
	if dirExists(basePath + ".bleve") {
		return SparseBackendBleve
	}
	return ""
}

// SparseIndexPath returns the full path to the sparse index file or
// directory based on the backend type.
func SparseIndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "bm25")
	switch backend {
	case string(SparseBackendBleve):
		return basePath + ".bleve"
	default:
		return basePath + ".gob"
	}
}

// DenseIndexPath returns the full path to the dense index file based on
// the backend type.
func DenseIndexPath(basePath string, backend string) string {
	switch backend {
	case string(DenseBackendHNSW):
		return basePath + ".hnsw"
	default:
		return basePath + ".flat"
	}
}

// SparseIndexBasePath returns the base path (without extension) for the
// sparse index under dataDir.
func SparseIndexBasePath(dataDir string) string {
	return filepath.Join(dataDir, "bm25")
}

// DenseIndexBasePath returns the base path (without extension) for the
// dense index under dataDir.
func DenseIndexBasePath(dataDir string) string {
	return filepath.Join(dataDir, "vectors")
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists at the given path.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
