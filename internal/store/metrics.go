package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics holds the shard-level collectors: checkpoint duration,
// vector-search latency, and 2PC outcome counters. Same shape as the WAL's
// own metrics struct: pre-registered collectors held alongside the
// component, never global package vars. Reopening a shard on the same
// registerer reuses the existing series.
type storeMetrics struct {
	checkpointSeconds prometheus.Histogram
	searchSeconds     prometheus.Histogram
	txPrepares        prometheus.Counter
	txCommits         prometheus.Counter
	txAborts          prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer, shard string) *storeMetrics {
	labels := prometheus.Labels{"shard": shard}
	return &storeMetrics{
		checkpointSeconds: registerHistogram(reg, prometheus.HistogramOpts{
			Name:        "sutra_checkpoint_seconds",
			Help:        "Duration of a full checkpoint (WAL swap, segment rewrite, rename), in seconds.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		searchSeconds: registerHistogram(reg, prometheus.HistogramOpts{
			Name:        "sutra_vector_search_seconds",
			Help:        "Latency of an HNSW vector search, in seconds.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		txPrepares: registerCounter(reg, prometheus.CounterOpts{
			Name:        "sutra_tx_prepares_total",
			Help:        "Number of 2PC prepare records durably written by this shard.",
			ConstLabels: labels,
		}),
		txCommits: registerCounter(reg, prometheus.CounterOpts{
			Name:        "sutra_tx_commits_total",
			Help:        "Number of 2PC transactions committed by this shard.",
			ConstLabels: labels,
		}),
		txAborts: registerCounter(reg, prometheus.CounterOpts{
			Name:        "sutra_tx_aborts_total",
			Help:        "Number of 2PC transactions aborted by this shard.",
			ConstLabels: labels,
		}),
	}
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}

func registerHistogram(reg prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	if reg == nil {
		return h
	}
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Histogram)
		}
		panic(err)
	}
	return h
}
