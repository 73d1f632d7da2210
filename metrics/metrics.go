// Package metrics exports subdoc engine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentflare-ai/subdoc"
)

// PrometheusObserver implements subdoc.Observer.
type PrometheusObserver struct {
	batches       *prometheus.CounterVec
	ops           *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchSpecs    *prometheus.HistogramVec
}

var _ subdoc.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the subdoc metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		// Labels: kind (lookup, mutation), status
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subdoc",
			Subsystem: "engine",
			Name:      "batches_total",
			Help:      "Batches executed by kind and batch-level status",
		}, []string{"kind", "status"}),

		// Labels: opcode, status
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subdoc",
			Subsystem: "engine",
			Name:      "ops_total",
			Help:      "Path operations attempted by opcode and status",
		}, []string{"opcode", "status"}),

		// Labels: kind
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "subdoc",
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Time spent evaluating a batch, excluding store I/O",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"kind"}),

		// Labels: kind
		batchSpecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "subdoc",
			Subsystem: "engine",
			Name:      "batch_specs",
			Help:      "Number of specs per batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{o.batches, o.ops, o.batchDuration, o.batchSpecs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// ObserveBatch records one batch outcome.
func (o *PrometheusObserver) ObserveBatch(kind subdoc.BatchKind, status subdoc.Status, specs int, elapsed time.Duration) {
	o.batches.WithLabelValues(string(kind), status.String()).Inc()
	o.batchDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	o.batchSpecs.WithLabelValues(string(kind)).Observe(float64(specs))
}

// ObserveOp records one op outcome.
func (o *PrometheusObserver) ObserveOp(op subdoc.Opcode, status subdoc.Status) {
	o.ops.WithLabelValues(op.String(), status.String()).Inc()
}
