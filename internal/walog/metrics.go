package walog

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus counters exported for a single WAL
// instance: a small struct of pre-registered collectors held alongside
// the component they describe, rather than global package-level vars.
type metrics struct {
	appends       prometheus.Counter
	appendErrors  prometheus.Counter
	bytesWritten  prometheus.Counter
	appendSeconds prometheus.Histogram
}

// newMetricsForShard builds counters labeled by shard so one process hosting
// many WALs (one per shard) can register them all without collision. reg may
// be nil in tests, where metrics are simply not exported. A collector that is
// already registered (the WAL is reopened on the same registerer at every
// checkpoint) is reused so the series continues instead of panicking.
func newMetricsForShard(reg prometheus.Registerer, shard string) *metrics {
	labels := prometheus.Labels{"shard": shard}
	return &metrics{
		appends: registerCounter(reg, prometheus.CounterOpts{
			Name:        "sutra_wal_appends_total",
			Help:        "Number of WAL records successfully appended and fsynced.",
			ConstLabels: labels,
		}),
		appendErrors: registerCounter(reg, prometheus.CounterOpts{
			Name:        "sutra_wal_append_errors_total",
			Help:        "Number of WAL append or fsync failures.",
			ConstLabels: labels,
		}),
		bytesWritten: registerCounter(reg, prometheus.CounterOpts{
			Name:        "sutra_wal_bytes_written_total",
			Help:        "Total bytes written to WAL files, including record framing.",
			ConstLabels: labels,
		}),
		appendSeconds: registerHistogram(reg, prometheus.HistogramOpts{
			Name:        "sutra_wal_append_seconds",
			Help:        "Latency of a WAL append including fsync, in seconds.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00025, 4, 8),
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
