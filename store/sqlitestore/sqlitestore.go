// Package sqlitestore is a subdoc.Store backed by SQLite (modernc.org/sqlite,
// no cgo).
//
// Usage:
//
//	st, err := sqlitestore.Open("docs.db")
//	defer st.Close()
//
// In tests:
//
//	st, err := sqlitestore.Open(":memory:")
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentflare-ai/subdoc"
	"github.com/agentflare-ai/subdoc/internal/casclock"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	key TEXT PRIMARY KEY,
	doc BLOB NOT NULL,
	cas INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS seqno (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO seqno (id, value) VALUES (1, 0);
`

const maxRetries = 3

// Store implements subdoc.Store on an SQLite database.
type Store struct {
	db    *sql.DB
	clock casclock.Clock
}

// Open opens the database at path, applying WAL pragmas and the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: exec schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Fetch implements subdoc.Store.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, uint64, error) {
	var (
		doc []byte
		cas int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT doc, cas FROM documents WHERE key = ?`, key).Scan(&doc, &cas)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, subdoc.ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sqlitestore: fetch: %w", err)
	}
	return doc, uint64(cas), nil
}

// CompareAndSwap implements subdoc.Store. The conditional UPDATE is the
// compare-and-swap: it only matches a row whose CAS is still expectedCAS.
func (s *Store) CompareAndSwap(ctx context.Context, key string, doc []byte, expectedCAS uint64, opts subdoc.WriteOptions) (subdoc.WriteResult, error) {
	var res subdoc.WriteResult
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		s.clock.Observe(expectedCAS)
		res = subdoc.WriteResult{CAS: s.clock.Next()}
		r, err := tx.ExecContext(ctx,
			`UPDATE documents SET doc = ?, cas = ? WHERE key = ? AND cas = ?`,
			doc, int64(res.CAS), key, int64(expectedCAS))
		if err != nil {
			return err
		}
		n, err := r.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE key = ?`, key).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return subdoc.ErrKeyNotFound
			}
			if err != nil {
				return err
			}
			return subdoc.ErrCASMismatch
		}
		if opts.MutationSeqno {
			var seq int64
			if err := tx.QueryRowContext(ctx,
				`UPDATE seqno SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&seq); err != nil {
				return fmt.Errorf("next seqno: %w", err)
			}
			res.Seqno = uint64(seq)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, subdoc.ErrKeyNotFound) || errors.Is(err, subdoc.ErrCASMismatch) {
			return subdoc.WriteResult{}, err
		}
		return subdoc.WriteResult{}, fmt.Errorf("sqlitestore: compare-and-swap: %w", err)
	}
	return res, nil
}

// Set stores doc under key unconditionally and returns its new CAS.
func (s *Store) Set(ctx context.Context, key string, doc []byte) (uint64, error) {
	cas := s.clock.Next()
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		var old int64
		err := tx.QueryRowContext(ctx, `SELECT cas FROM documents WHERE key = ?`, key).Scan(&old)
		if err == nil && uint64(old) >= cas {
			s.clock.Observe(uint64(old))
			cas = s.clock.Next()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (key, doc, cas) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, cas = excluded.cas`,
			key, doc, int64(cas))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: set %q: %w", key, err)
	}
	return cas, nil
}

// Delete removes key. Deleting an absent key returns subdoc.ErrKeyNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	r, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete %q: %w", key, err)
	}
	if n, err := r.RowsAffected(); err == nil && n == 0 {
		return subdoc.ErrKeyNotFound
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx executes fn inside a transaction, retrying on SQLITE_BUSY with a
// 100/200 ms backoff.
func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	for i := range maxRetries {
		err := s.runOnce(ctx, fn)
		if err == nil || !isBusy(err) || i == maxRetries-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return errors.New("sqlitestore: max retries exceeded")
}

func (s *Store) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
