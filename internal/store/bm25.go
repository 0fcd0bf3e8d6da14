package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryBM25Index implements SparseIndex with an in-memory inverted index
// scored by classic BM25:
//
//	score(d) = Σ_t IDF(t) · f(t,d)·(k1+1) / (f(t,d) + k1·(1 - b + b·|d|/avgdl))
//
// It is the default sparse backend because it gives exact control over the
// k1/b constants and the tokenization policy, which the fusion evaluation
// depends on.
type MemoryBM25Index struct {
	mu        sync.RWMutex
	config    BM25Config
	tokenizer Tokenizer

	// customTokenizer marks a caller-supplied tokenizer, which must
	// survive Load so build and query tokenization stay in agreement.
	customTokenizer bool

	postings    map[string][]posting
	docLengths  map[int]int
	totalTokens int

	closed bool
}

// posting records one document occurrence of a term.
type posting struct {
	ChunkID  int
	TermFreq int
}

// bm25Snapshot is the gob persistence format for MemoryBM25Index.
type bm25Snapshot struct {
	Config      BM25Config
	Postings    map[string][]posting
	DocLengths  map[int]int
	TotalTokens int
}

// NewMemoryBM25Index creates an empty BM25 index with the default tokenizer
// built from the config's stop words and minimum token length.
func NewMemoryBM25Index(cfg BM25Config) (*MemoryBM25Index, error) {
	idx, err := NewMemoryBM25IndexWithTokenizer(cfg, NewTextTokenizer(cfg.StopWords, cfg.MinTokenLength))
	if err != nil {
		return nil, err
	}
	idx.customTokenizer = false
	return idx, nil
}

// NewMemoryBM25IndexWithTokenizer creates an empty BM25 index with a custom
// tokenizer. The same tokenizer is applied to documents and queries.
func NewMemoryBM25IndexWithTokenizer(cfg BM25Config, tok Tokenizer) (*MemoryBM25Index, error) {
	if cfg.K1 <= 0 {
		return nil, fmt.Errorf("bm25: k1 must be positive, got %g", cfg.K1)
	}
	if cfg.B < 0 || cfg.B > 1 {
		return nil, fmt.Errorf("bm25: b must be in [0, 1], got %g", cfg.B)
	}
	if tok == nil {
		return nil, fmt.Errorf("bm25: tokenizer is required")
	}

	return &MemoryBM25Index{
		config:          cfg,
		tokenizer:       tok,
		customTokenizer: true,
		postings:        make(map[string][]posting),
		docLengths:      make(map[int]int),
	}, nil
}

// Index adds documents to the inverted index.
func (s *MemoryBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("bm25 index is closed")
	}

	for _, doc := range docs {
		if _, exists := s.docLengths[doc.ID]; exists {
			return fmt.Errorf("bm25: document %d already indexed", doc.ID)
		}

		tokens := s.tokenizer.Tokenize(doc.Text)

		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t]++
		}
		for term, tf := range freq {
			s.postings[term] = append(s.postings[term], posting{ChunkID: doc.ID, TermFreq: tf})
		}

		s.docLengths[doc.ID] = len(tokens)
		s.totalTokens += len(tokens)
	}

	return nil
}

// Search scores every document containing at least one query term and
// returns up to limit results, descending by score, ties by ascending
// chunk id. Query terms absent from the vocabulary contribute nothing; a
// query with no matching terms returns an empty list.
func (s *MemoryBM25Index) Search(ctx context.Context, query string, limit int) ([]*SparseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("bm25 index is closed")
	}
	if limit <= 0 || len(s.docLengths) == 0 {
		return []*SparseResult{}, nil
	}

	tokens := s.tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return []*SparseResult{}, nil
	}

	n := float64(len(s.docLengths))
	avgdl := float64(s.totalTokens) / n

	scores := make(map[int]float64)
	matched := make(map[int][]string)
	seen := make(map[int]map[string]struct{})

	// Query terms are scored per occurrence, so repeating a term in the
	// query weighs it higher, as in the Okapi formulation.
	for _, term := range tokens {
		plist, ok := s.postings[term]
		if !ok {
			continue
		}

		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			tf := float64(p.TermFreq)
			norm := s.config.K1 * (1 - s.config.B + s.config.B*float64(s.docLengths[p.ChunkID])/avgdl)
			scores[p.ChunkID] += idf * tf * (s.config.K1 + 1) / (tf + norm)

			if seen[p.ChunkID] == nil {
				seen[p.ChunkID] = make(map[string]struct{})
			}
			if _, dup := seen[p.ChunkID][term]; !dup {
				seen[p.ChunkID][term] = struct{}{}
				matched[p.ChunkID] = append(matched[p.ChunkID], term)
			}
		}
	}

	results := make([]*SparseResult, 0, len(scores))
	for id, score := range scores {
		terms := matched[id]
		sort.Strings(terms)
		results = append(results, &SparseResult{
			ChunkID:      id,
			Score:        score,
			MatchedTerms: terms,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats returns index statistics.
func (s *MemoryBM25Index) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || len(s.docLengths) == 0 {
		return &IndexStats{}
	}

	return &IndexStats{
		DocumentCount: len(s.docLengths),
		TermCount:     len(s.postings),
		AvgDocLength:  float64(s.totalTokens) / float64(len(s.docLengths)),
	}
}

// Save persists the index with an atomic temp-file-and-rename.
func (s *MemoryBM25Index) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("bm25 index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	snap := bm25Snapshot{
		Config:      s.config,
		Postings:    s.postings,
		DocLengths:  s.docLengths,
		TotalTokens: s.totalTokens,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

// Load replaces the index contents from disk. The persisted scoring
// constants replace the configured ones so scores match the build exactly.
// A tokenizer supplied at construction is kept; only the default text
// tokenizer is rebuilt from the persisted config.
func (s *MemoryBM25Index) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("bm25 index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	var snap bm25Snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}

	s.config = snap.Config
	if !s.customTokenizer {
		s.tokenizer = NewTextTokenizer(snap.Config.StopWords, snap.Config.MinTokenLength)
	}
	s.postings = snap.Postings
	s.docLengths = snap.DocLengths
	s.totalTokens = snap.TotalTokens
	return nil
}

// Close releases the index.
func (s *MemoryBM25Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.postings = nil
	s.docLengths = nil
	return nil
}

// Verify interface implementation
var _ SparseIndex = (*MemoryBM25Index)(nil)
