// Package memstore is an in-memory subdoc.Store sharded by key hash.
package memstore

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/agentflare-ai/subdoc"
	"github.com/agentflare-ai/subdoc/internal/casclock"
)

// DefaultShards is the shard count used by New(0).
const DefaultShards = 64

type item struct {
	doc []byte
	cas uint64
}

type shard struct {
	mu    sync.RWMutex
	items map[string]item
}

// Store keeps documents in memory. It is safe for concurrent use; writes to
// one key are serialized by the key's shard lock.
type Store struct {
	shards []*shard
	clock  casclock.Clock
	seqno  atomic.Uint64
}

// New returns an empty Store with the given number of shards.
func New(shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = DefaultShards
	}
	s := &Store{shards: make([]*shard, shardCount)}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]item)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Fetch implements subdoc.Store.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	sh := s.shardFor(key)
	sh.mu.RLock()
	it, ok := sh.items[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, 0, subdoc.ErrKeyNotFound
	}
	return append([]byte(nil), it.doc...), it.cas, nil
}

// CompareAndSwap implements subdoc.Store.
func (s *Store) CompareAndSwap(ctx context.Context, key string, doc []byte, expectedCAS uint64, opts subdoc.WriteOptions) (subdoc.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return subdoc.WriteResult{}, err
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	it, ok := sh.items[key]
	if !ok {
		return subdoc.WriteResult{}, subdoc.ErrKeyNotFound
	}
	if it.cas != expectedCAS {
		return subdoc.WriteResult{}, subdoc.ErrCASMismatch
	}
	res := subdoc.WriteResult{CAS: s.clock.Next()}
	if opts.MutationSeqno {
		res.Seqno = s.seqno.Add(1)
	}
	sh.items[key] = item{doc: append([]byte(nil), doc...), cas: res.CAS}
	return res, nil
}

// Set stores doc under key unconditionally and returns its new CAS.
func (s *Store) Set(ctx context.Context, key string, doc []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cas := s.clock.Next()
	sh.items[key] = item{doc: append([]byte(nil), doc...), cas: cas}
	return cas, nil
}

// Delete removes key. Deleting an absent key returns subdoc.ErrKeyNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[key]; !ok {
		return subdoc.ErrKeyNotFound
	}
	delete(sh.items, key)
	return nil
}

// Close is a no-op; it lets Store stand in for the durable backends.
func (s *Store) Close() error { return nil }
