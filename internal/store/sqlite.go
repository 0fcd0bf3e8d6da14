package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/clinrag/clinrag/internal/corpus"
)

// ErrChunkNotFound is returned when a chunk id is not in the store.
var ErrChunkNotFound = errors.New("chunk not found")

// ErrStateNotFound is returned when a state key has not been set.
var ErrStateNotFound = errors.New("state key not found")

// ChunkStore persists chunks and build-state metadata in SQLite. WAL mode
// allows a search process to read while an index build writes.
type ChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id             INTEGER PRIMARY KEY,
	chapter_number INTEGER NOT NULL,
	chapter_title  TEXT    NOT NULL,
	text           TEXT    NOT NULL,
	token_length   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS build_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// validateChunkStoreIntegrity checks if a chunk database is valid before
// opening. Returns nil if valid, error describing corruption if not.
func validateChunkStoreIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// NewChunkStore opens (or creates) a chunk store at path.
// If path is empty, creates an in-memory store for testing.
func NewChunkStore(path string) (*ChunkStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateChunkStoreIntegrity(path); validErr != nil {
			slog.Warn("chunk_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("chunk store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("chunk_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please rebuild"))
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(chunkSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &ChunkStore{db: db, path: path}, nil
}

// SaveChunks inserts or replaces chunks in a single transaction.
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []*corpus.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, chapter_number, chapter_title, text, token_length)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.ChapterNumber, c.ChapterTitle, c.Text, c.TokenLength); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetChunk returns the chunk with the given id, or ErrChunkNotFound.
func (s *ChunkStore) GetChunk(ctx context.Context, id int) (*corpus.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, chapter_number, chapter_title, text, token_length
		FROM chunks WHERE id = ?`, id)

	var c corpus.Chunk
	err := row.Scan(&c.ID, &c.ChapterNumber, &c.ChapterTitle, &c.Text, &c.TokenLength)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %d: %w", id, ErrChunkNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query chunk %d: %w", id, err)
	}
	return &c, nil
}

// GetChunks returns the chunks for the given ids in one query. The result
// maps chunk id to chunk; missing ids are absent from the map rather than
// an error, so callers can decide how to handle gaps.
func (s *ChunkStore) GetChunks(ctx context.Context, ids []int) (map[int]*corpus.Chunk, error) {
	if len(ids) == 0 {
		return map[int]*corpus.Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, chapter_number, chapter_title, text, token_length
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	result := make(map[int]*corpus.Chunk, len(ids))
	for rows.Next() {
		var c corpus.Chunk
		if err := rows.Scan(&c.ID, &c.ChapterNumber, &c.ChapterTitle, &c.Text, &c.TokenLength); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		result[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return result, nil
}

// AllChunks returns every chunk ordered by id. Used for index rebuilds.
func (s *ChunkStore) AllChunks(ctx context.Context) ([]*corpus.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chapter_number, chapter_title, text, token_length
		FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*corpus.Chunk
	for rows.Next() {
		var c corpus.Chunk
		if err := rows.Scan(&c.ID, &c.ChapterNumber, &c.ChapterTitle, &c.Text, &c.TokenLength); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("chunk store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// SetState stores a build-state value, such as the embedding dimension or
// model name the indexes were built with.
func (s *ChunkStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO build_state (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// GetState returns a build-state value, or ErrStateNotFound.
func (s *ChunkStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("chunk store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM build_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("state %s: %w", key, ErrStateNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// Close closes the underlying database.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
