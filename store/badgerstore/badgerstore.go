// Package badgerstore is a subdoc.Store backed by BadgerDB.
//
// Each document is stored under "doc/<key>" as an 8-byte big-endian CAS
// followed by the document bytes. Mutation sequence numbers come from a
// badger.Sequence leased under "meta/seqno".
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/agentflare-ai/subdoc"
	"github.com/agentflare-ai/subdoc/internal/casclock"
)

const (
	docPrefix    = "doc/"
	seqnoKey     = "meta/seqno"
	seqnoLease   = 128
	casHeaderLen = 8
)

// Config holds configuration for a badger-backed Store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns the production defaults for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements subdoc.Store on a BadgerDB instance.
type Store struct {
	db    *badger.DB
	seq   *badger.Sequence
	clock casclock.Clock
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badgerstore: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	seq, err := db.GetSequence([]byte(seqnoKey), seqnoLease)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badgerstore: lease seqno: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	relErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close: %w", err)
	}
	if relErr != nil {
		return fmt.Errorf("badgerstore: release seqno: %w", relErr)
	}
	return nil
}

func docKey(key string) []byte { return []byte(docPrefix + key) }

func encode(cas uint64, doc []byte) []byte {
	buf := make([]byte, casHeaderLen+len(doc))
	binary.BigEndian.PutUint64(buf, cas)
	copy(buf[casHeaderLen:], doc)
	return buf
}

func decode(val []byte) ([]byte, uint64, error) {
	if len(val) < casHeaderLen {
		return nil, 0, fmt.Errorf("badgerstore: corrupt record of %d bytes", len(val))
	}
	return append([]byte(nil), val[casHeaderLen:]...), binary.BigEndian.Uint64(val), nil
}

func get(txn *badger.Txn, key string) ([]byte, uint64, error) {
	item, err := txn.Get(docKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, subdoc.ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	var (
		doc []byte
		cas uint64
	)
	err = item.Value(func(val []byte) error {
		var derr error
		doc, cas, derr = decode(val)
		return derr
	})
	return doc, cas, err
}

// Fetch implements subdoc.Store.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var (
		doc []byte
		cas uint64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, cas, err = get(txn, key)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return doc, cas, nil
}

// CompareAndSwap implements subdoc.Store. Badger's optimistic transactions
// turn a concurrent commit of the same key into badger.ErrConflict, which is
// reported as subdoc.ErrCASMismatch.
func (s *Store) CompareAndSwap(ctx context.Context, key string, doc []byte, expectedCAS uint64, opts subdoc.WriteOptions) (subdoc.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return subdoc.WriteResult{}, err
	}
	var res subdoc.WriteResult
	err := s.db.Update(func(txn *badger.Txn) error {
		_, cas, err := get(txn, key)
		if err != nil {
			return err
		}
		if cas != expectedCAS {
			return subdoc.ErrCASMismatch
		}
		s.clock.Observe(cas)
		res.CAS = s.clock.Next()
		if opts.MutationSeqno {
			n, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("badgerstore: next seqno: %w", err)
			}
			res.Seqno = n + 1
		}
		return txn.Set(docKey(key), encode(res.CAS, doc))
	})
	if errors.Is(err, badger.ErrConflict) {
		return subdoc.WriteResult{}, subdoc.ErrCASMismatch
	}
	if err != nil {
		return subdoc.WriteResult{}, err
	}
	return res, nil
}

// Set stores doc under key unconditionally and returns its new CAS.
func (s *Store) Set(ctx context.Context, key string, doc []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var cas uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, old, err := get(txn, key); err == nil {
			s.clock.Observe(old)
		}
		cas = s.clock.Next()
		return txn.Set(docKey(key), encode(cas, doc))
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: set %q: %w", key, err)
	}
	return cas, nil
}

// Delete removes key. Deleting an absent key returns subdoc.ErrKeyNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, _, err := get(txn, key); err != nil {
			return err
		}
		return txn.Delete(docKey(key))
	})
}
