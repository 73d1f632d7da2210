package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/subdoc"
)

// TestObserverCountsEngineActivity runs real batches through an engine wired
// to the observer and checks the resulting counters.
func TestObserverCountsEngineActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	engine := subdoc.NewEngine(subdoc.Options{Observer: obs})
	doc := []byte(`{"a":1}`)

	res := engine.ExecuteLookup(doc, subdoc.Batch{Specs: []subdoc.Spec{
		{Op: subdoc.OpGet, Path: "a"},
		{Op: subdoc.OpGet, Path: "missing"},
	}})
	require.Equal(t, subdoc.StatusMultiPathFailure, res.Status)

	res, _ = engine.ExecuteMutation(doc, 0, subdoc.Batch{Specs: []subdoc.Spec{
		{Op: subdoc.OpCounter, Path: "a", Value: []byte("1")},
	}})
	require.Equal(t, subdoc.StatusSuccess, res.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.batches.WithLabelValues("lookup", "MULTI_PATH_FAILURE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.batches.WithLabelValues("mutation", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.ops.WithLabelValues("get", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.ops.WithLabelValues("get", "PATH_ENOENT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.ops.WithLabelValues("counter", "SUCCESS")))
	assert.Equal(t, 2, testutil.CollectAndCount(obs.batchDuration))
}

func TestObserverInvalidComboHasNoOps(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	engine := subdoc.NewEngine(subdoc.Options{MaxPaths: 1, Observer: obs})
	res := engine.ExecuteLookup([]byte(`{}`), subdoc.Batch{Specs: []subdoc.Spec{
		{Op: subdoc.OpExists, Path: "a"},
		{Op: subdoc.OpExists, Path: "b"},
	}})
	require.Equal(t, subdoc.StatusInvalidCombo, res.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.batches.WithLabelValues("lookup", "INVALID_COMBO")))
	assert.Equal(t, 0, testutil.CollectAndCount(obs.ops))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusObserver(reg)
	require.NoError(t, err)
	_, err = NewPrometheusObserver(reg)
	assert.Error(t, err)
}
