package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/subdoc"
	"github.com/agentflare-ai/subdoc/internal/storetest"
)

func TestMemoryStore(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	storetest.Run(t, st)
}

func TestFileStore(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "nested", "docs.db"))
	require.NoError(t, err)
	defer st.Close()

	storetest.Run(t, st)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	ctx := context.Background()

	st, err := Open(path)
	require.NoError(t, err)
	cas, err := st.Set(ctx, "k", []byte(`{"n":1}`))
	require.NoError(t, err)
	res, err := st.CompareAndSwap(ctx, "k", []byte(`{"n":2}`), cas, subdoc.WriteOptions{MutationSeqno: true})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	doc, got, err := st.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"n":2}`, string(doc))
	assert.Equal(t, res.CAS, got)

	next, err := st.CompareAndSwap(ctx, "k", []byte(`{"n":3}`), got, subdoc.WriteOptions{MutationSeqno: true})
	require.NoError(t, err)
	assert.Equal(t, res.Seqno+1, next.Seqno)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, isBusy(nil))
	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isBusy(errors.New("no such table")))
}
