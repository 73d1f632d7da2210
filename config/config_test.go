package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/subdoc"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, subdoc.DefaultMaxPaths, opts.MaxPaths)
	assert.Equal(t, subdoc.CounterCreateWithMkdirP, opts.CounterPolicy)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
engine:
  max_paths: 4
  counter_policy: always
store:
  backend: sqlite
  path: /tmp/docs.db
mutation_seqno: true
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.MaxPaths)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.True(t, cfg.MutationSeqno)
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, subdoc.CounterCreateAlways, opts.CounterPolicy)
}

func TestParseKeepsDefaultsForOmittedFields(t *testing.T) {
	cfg, err := Parse([]byte("log_level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, subdoc.DefaultMaxPaths, cfg.Engine.MaxPaths)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestParseRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "store:\n  backend: redis\n"},
		{"badger without path", "store:\n  backend: badger\n"},
		{"zero max paths", "engine:\n  max_paths: 0\n"},
		{"unknown counter policy", "engine:\n  counter_policy: sometimes\n"},
		{"unknown log level", "log_level: loud\n"},
		{"malformed yaml", "engine: [\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_paths: 8\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.MaxPaths)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenStoreBackends(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name  string
		store StoreConfig
	}{
		{"memory", StoreConfig{Backend: "memory"}},
		{"badger", StoreConfig{Backend: "badger", Path: filepath.Join(dir, "badger")}},
		{"sqlite", StoreConfig{Backend: "sqlite", Path: filepath.Join(dir, "docs.db")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store = tc.store
			require.NoError(t, cfg.Validate())

			st, err := cfg.OpenStore(nil)
			require.NoError(t, err)
			defer st.Close()

			ctx := context.Background()
			cas, err := st.Set(ctx, "k", []byte(`{"n":1}`))
			require.NoError(t, err)

			doc, got, err := st.Fetch(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, cas, got)
			assert.JSONEq(t, `{"n":1}`, string(doc))
		})
	}
}
