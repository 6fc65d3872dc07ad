// Package metrics registers the process-wide Prometheus collectors. Both
// binaries expose them through promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts cache reads served from a stored entry, fresh or stale.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotcunit_cache_hits_total",
		Help: "Cache reads that found an entry, labeled by namespace.",
	}, []string{"namespace"})

	// CacheMisses counts cache reads that found nothing.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotcunit_cache_misses_total",
		Help: "Cache reads that found no entry, labeled by namespace.",
	}, []string{"namespace"})

	// ScansAccepted counts scan frames that passed the debounce gate.
	ScansAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotcunit_scans_accepted_total",
		Help: "QR scan frames accepted for processing.",
	})

	// ScansDebounced counts scan frames dropped inside the cool-down window.
	ScansDebounced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotcunit_scans_debounced_total",
		Help: "QR scan frames dropped as repeats inside the cool-down window.",
	})

	// MarkLatency observes round-trip time of mark persistence calls.
	MarkLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rotcunit_mark_persist_seconds",
		Help:    "Latency of attendance mark persistence round trips.",
		Buckets: prometheus.DefBuckets,
	})

	// RecordsByState tracks how many local records sit in each sync state.
	RecordsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rotcunit_records_sync_state",
		Help: "Local attendance records per sync state.",
	}, []string{"state"})
)
