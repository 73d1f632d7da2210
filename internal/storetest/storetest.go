// Package storetest holds the behavior every subdoc.Store backend must share.
package storetest

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/agentflare-ai/subdoc"
)

// Store is a backend under test.
type Store interface {
	subdoc.Store
	Set(ctx context.Context, key string, doc []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
}

// Run exercises st. It must start empty.
func Run(t *testing.T, st Store) {
	t.Run("FetchMissing", func(t *testing.T) { fetchMissing(t, st) })
	t.Run("SetFetch", func(t *testing.T) { setFetch(t, st) })
	t.Run("CompareAndSwap", func(t *testing.T) { compareAndSwap(t, st) })
	t.Run("Seqno", func(t *testing.T) { seqno(t, st) })
	t.Run("Delete", func(t *testing.T) { deleteKey(t, st) })
	t.Run("Contention", func(t *testing.T) { contention(t, st) })
}

func fetchMissing(t *testing.T, st Store) {
	_, _, err := st.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, subdoc.ErrKeyNotFound)

	_, err = st.CompareAndSwap(context.Background(), "missing", []byte(`{}`), 1, subdoc.WriteOptions{})
	assert.ErrorIs(t, err, subdoc.ErrKeyNotFound)
}

func setFetch(t *testing.T, st Store) {
	ctx := context.Background()
	cas1, err := st.Set(ctx, "set", []byte(`{"a":1}`))
	require.NoError(t, err)
	require.NotZero(t, cas1)

	doc, cas, err := st.Fetch(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(doc))
	assert.Equal(t, cas1, cas)

	cas2, err := st.Set(ctx, "set", []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.NotEqual(t, cas1, cas2)

	// The returned slice belongs to the caller.
	doc, _, err = st.Fetch(ctx, "set")
	require.NoError(t, err)
	doc[0] = 'X'
	again, _, err := st.Fetch(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(again))
}

func compareAndSwap(t *testing.T, st Store) {
	ctx := context.Background()
	cas, err := st.Set(ctx, "cas", []byte(`{"n":0}`))
	require.NoError(t, err)

	_, err = st.CompareAndSwap(ctx, "cas", []byte(`{"n":1}`), cas-1, subdoc.WriteOptions{})
	require.ErrorIs(t, err, subdoc.ErrCASMismatch)
	doc, got, err := st.Fetch(ctx, "cas")
	require.NoError(t, err)
	assert.Equal(t, `{"n":0}`, string(doc))
	assert.Equal(t, cas, got)

	res, err := st.CompareAndSwap(ctx, "cas", []byte(`{"n":1}`), cas, subdoc.WriteOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, cas, res.CAS)
	assert.Zero(t, res.Seqno)

	doc, got, err = st.Fetch(ctx, "cas")
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(doc))
	assert.Equal(t, res.CAS, got)

	// The old CAS is spent.
	_, err = st.CompareAndSwap(ctx, "cas", []byte(`{"n":2}`), cas, subdoc.WriteOptions{})
	assert.ErrorIs(t, err, subdoc.ErrCASMismatch)
}

func seqno(t *testing.T, st Store) {
	ctx := context.Background()
	cas, err := st.Set(ctx, "seq", []byte(`1`))
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 3; i++ {
		res, err := st.CompareAndSwap(ctx, "seq", []byte(`1`), cas, subdoc.WriteOptions{MutationSeqno: true})
		require.NoError(t, err)
		assert.Greater(t, res.Seqno, last)
		last, cas = res.Seqno, res.CAS
	}
}

func deleteKey(t *testing.T, st Store) {
	ctx := context.Background()
	_, err := st.Set(ctx, "del", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, "del"))
	_, _, err = st.Fetch(ctx, "del")
	assert.ErrorIs(t, err, subdoc.ErrKeyNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "del"), subdoc.ErrKeyNotFound)
}

// contention runs optimistic read-modify-write loops on one key from several
// goroutines through a Service; every increment must land exactly once.
func contention(t *testing.T, st Store) {
	const (
		workers    = 8
		increments = 25
	)
	ctx := context.Background()
	_, err := st.Set(ctx, "hot", []byte(`{"n":0}`))
	require.NoError(t, err)

	svc := subdoc.NewService(subdoc.NewEngine(subdoc.Options{}), st)
	batch := subdoc.Batch{Key: "hot", Specs: []subdoc.Spec{{Op: subdoc.OpCounter, Path: "n", Value: []byte("1")}}}

	var conflicts atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for done := 0; done < increments; {
				res, err := svc.Mutate(ctx, batch, subdoc.MutateOptions{})
				if err != nil {
					return err
				}
				switch res.Status {
				case subdoc.StatusSuccess:
					done++
				case subdoc.StatusKeyExists:
					conflicts.Add(1)
				default:
					t.Errorf("unexpected status %s", res.Status)
					return nil
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	doc, _, err := st.Fetch(context.Background(), "hot")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":200}`, string(doc))
	t.Logf("%d CAS conflicts retried", conflicts.Load())
}
