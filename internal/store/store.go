// Package store manages the single local SQLite database: the two fixed
// NF-e tables, dynamically created tables for arbitrary ingested sources,
// the append-only audit and query history tables, and the fingerprint
// cache that detects already-ingested files.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	// sqlite driver (pure Go).
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database connection.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// New creates a store instance. Open must be called before use.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{logger: logger}
}

// Open opens the SQLite database at path and runs pending migrations.
// Use ":memory:" for an in-memory database.
func (s *Store) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", abs)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single-writer local store: one connection avoids SQLITE_BUSY churn
	// and keeps :memory: databases on a single handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if path == ":memory:" {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	s.db = db
	s.path = path

	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}

	s.logger.Debug("store opened", "path", path)
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying connection for read-only consumers such as
// the raw query command.
func (s *Store) DB() *sql.DB { return s.db }

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Every multi-row write goes through here so a
// failed insert leaves no partial rows.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueryRows executes a read-only statement and returns column names plus
// rows as maps, with []byte values converted to strings for readability.
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([]string, []map[string]any, error) {
	if s.db == nil {
		return nil, nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row[col] = val
		}
		results = append(results, row)
	}
	return cols, results, rows.Err()
}
