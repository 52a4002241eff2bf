package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// SQLiteFTS implements FTSStore on SQLite FTS5 with WAL mode for
// concurrent readers. This is the default backend.
type SQLiteFTS struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time.
var _ FTSStore = (*SQLiteFTS)(nil)

// validateSQLiteIntegrity checks a database before opening. A corrupt
// index is cleared so the caller can rebuild instead of failing every
// operation.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteFTS opens (or creates) the FTS database. An empty path
// creates an in-memory index for tests.
func NewSQLiteFTS(path string) (*SQLiteFTS, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := validateSQLiteIntegrity(path); err != nil {
			slog.Warn("fts index corrupted, clearing",
				slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer prevents lock contention under the pure-Go driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma failed: %w", err)
		}
	}

	schema := `CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
		text,
		id UNINDEXED,
		path UNINDEXED,
		tokenize = 'unicode61 remove_diacritics 2'
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create FTS table: %w", err)
	}

	return &SQLiteFTS{db: db, path: path}, nil
}

// AddChunks indexes records, replacing any existing rows for their ids.
func (s *SQLiteFTS) AddChunks(ctx context.Context, records []*ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, "DELETE FROM fts_chunks WHERE id = ?")
	if err != nil {
		return err
	}
	defer func() { _ = del.Close() }()

	ins, err := tx.PrepareContext(ctx, "INSERT INTO fts_chunks (text, id, path) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = ins.Close() }()

	for _, r := range records {
		if _, err := del.ExecContext(ctx, r.ID); err != nil {
			return err
		}
		// Index the tokenized form so CamelCase and snake_case parts
		// match plain query words.
		if _, err := ins.ExecContext(ctx, expandForIndex(r.Text), r.ID, r.Path); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RemoveByPath removes every chunk of a file.
func (s *SQLiteFTS) RemoveByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM fts_chunks WHERE path = ?", path)
	return err
}

// RemoveByIDs removes chunks by id.
func (s *SQLiteFTS) RemoveByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM fts_chunks WHERE id = ?")
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search returns the top-k BM25 hits. FTS5's bm25() rank is negative
// (more negative = better); scores are flipped positive here and
// normalized by the caller.
func (s *SQLiteFTS) Search(ctx context.Context, query string, k int) ([]*FTSResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	match := buildMatchQuery(query)
	if match == "" {
		return []*FTSResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, bm25(fts_chunks) FROM fts_chunks
		 WHERE fts_chunks MATCH ? ORDER BY bm25(fts_chunks) LIMIT ?`,
		match, k)
	if err != nil {
		return nil, fmt.Errorf("fts search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*FTSResult
	for rows.Next() {
		var r FTSResult
		var rank float64
		if err := rows.Scan(&r.ID, &r.Path, &rank); err != nil {
			return nil, err
		}
		r.Score = -rank
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Stats returns the document count.
func (s *SQLiteFTS) Stats() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM fts_chunks").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteFTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// buildMatchQuery quotes each query token for FTS5, ORing them so any
// term can match. Identifier tokens are split so "authenticateUser"
// finds chunks mentioning authenticate or user.
func buildMatchQuery(query string) string {
	tokens := TokenizeQuery(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
