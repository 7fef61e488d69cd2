// Package store is the single source of truth for all persistent vault
// state: media items, the upload queue, albums, faces, persons, tags,
// embeddings, and configuration. A single shared *sql.DB backs an
// explicit single-writer lock that fails fast if ever left poisoned by a
// panicking holder.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ronimuliawan/Wanderer/internal/verr"
)

// Store owns one SQLite connection and a single-writer lock across it.
// Reads that return cursors materialize into slices before the lock is
// released.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	poisoned bool
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, verr.New(verr.KindInvalidInput, "db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, verr.Wrap(verr.KindIO, "create db dir", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, verr.Wrap(verr.KindStorage, "open db", err)
	}
	// Single physical connection: the whole point of the writer-lock
	// design is that there is exactly one connection to serialize.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, verr.Wrap(verr.KindStorage, "migrate", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB { return s.db }

// withWriteLock serializes a single mutation, converting a panic from the
// callback into a poisoned-store state so subsequent callers fail fast
// instead of deadlocking, mirroring the Rust implementation's poisoned
// mutex handling.
func (s *Store) withWriteLock(fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned {
		return verr.New(verr.KindStorage, "store lock poisoned by a prior panic")
	}
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			err = verr.New(verr.KindStorage, fmt.Sprintf("store operation panicked: %v", r))
		}
	}()
	return fn()
}

// withReadLock materializes a read under the lock; the caller's fn must
// not retain the *sql.Rows past its return.
func (s *Store) withReadLock(fn func() error) error {
	return s.withWriteLock(fn)
}
