package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps cache entries in a local sqlite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the cache database at the given path
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	store, err := NewSQLiteStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreFromDB initializes the cache schema on an already opened database
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	// Fan-out writers share one connection; sqlite allows a single writer anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM feed_cache WHERE key = ?", key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feed_cache (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

// Clear removes all cache entries
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_cache"); err != nil {
		return fmt.Errorf("failed to clear feed cache: %w", err)
	}
	return nil
}

// Stats returns cache statistics
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_cache").Scan(&stats.Entries)
	if err != nil {
		return stats, err
	}

	var oldestUnix sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT MIN(updated_at) FROM feed_cache").Scan(&oldestUnix)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, err
	}
	if oldestUnix.Valid && oldestUnix.Int64 > 0 {
		stats.OldestEntry = time.Unix(oldestUnix.Int64, 0)
	}

	return stats, nil
}

// Close closes the cache database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
