// Package state owns capsight's durable client-side storage and the
// last-known-good caches that back the cache fallback source.
//
// Durable storage is a single SQLite file holding named records (the
// serialized settings and the persisted credentials) read once at startup
// and written on every successful state change. The snapshot and event-list
// caches are in-memory only: they exist to re-emit the previous value when a
// live fetch fails or is skipped, and they do not survive a restart.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// Record names used by the rest of the client.
const (
	RecordSettings = "settings"
	RecordAuth     = "auth"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_records (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is the durable record store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path with WAL and the usual
// production pragmas. The caller must blank-import a driver registering the
// "sqlite" name:
//
//	import _ "modernc.org/sqlite"
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("state: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns is pinned to
// 1 so every query sees the same in-memory database; the store is closed via
// t.Cleanup.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("state.OpenMemory: %v", err)
	}
	st.db.SetMaxOpenConns(1)
	t.Cleanup(func() { st.Close() })
	return st
}

// DB exposes the underlying handle for change watchers.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Load reads a named record. ok is false when the record does not exist.
func (s *Store) Load(ctx context.Context, name string) (value []byte, ok bool, err error) {
	var v string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM client_records WHERE name = ?`, name).Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("state: load %s: %w", name, err)
	}
	return []byte(v), true, nil
}

// Save writes a named record, replacing any previous value.
func (s *Store) Save(ctx context.Context, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_records (name, value, updated_at) VALUES (?,?,?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("state: save %s: %w", name, err)
	}
	return nil
}

// Delete removes a named record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_records WHERE name = ?`, name); err != nil {
		return fmt.Errorf("state: delete %s: %w", name, err)
	}
	return nil
}

// Cache holds the last known-good value of type T. It is the trivially
// replayable source consulted when a live fetch fails or a paused tick skips
// the network: Get re-emits whatever the last successful fetch stored.
type Cache[T any] struct {
	mu  sync.RWMutex
	val T
	set bool
}

// Set replaces the cached value. Replacement is atomic from the reader's
// point of view.
func (c *Cache[T]) Set(v T) {
	c.mu.Lock()
	c.val = v
	c.set = true
	c.mu.Unlock()
}

// Get returns the cached value; ok is false before the first Set or after
// Clear.
func (c *Cache[T]) Get() (v T, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val, c.set
}

// Clear discards the cached value.
func (c *Cache[T]) Clear() {
	var zero T
	c.mu.Lock()
	c.val = zero
	c.set = false
	c.mu.Unlock()
}
