// Package metrics defines the Prometheus collectors of the ingest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsConsumed tracks items pulled from the inbound queue.
	ItemsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_items_consumed_total",
			Help: "Items pulled from the inbound queue",
		},
	)

	// ItemsMalformed tracks items dropped for missing required fields.
	ItemsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_items_malformed_total",
			Help: "Items dropped because required fields were missing",
		},
	)

	// ItemsUnmatched tracks items no project claimed.
	ItemsUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_items_unmatched_total",
			Help: "Items no project matched",
		},
	)

	// ItemsMatched tracks items routed to a project.
	ItemsMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_items_matched_total",
			Help: "Items routed to a project",
		},
		[]string{"project"},
	)

	// Evictions tracks capacity evictions per collection kind.
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranked_set_evictions_total",
			Help: "Members evicted to respect a capacity bound",
		},
		[]string{"kind"},
	)

	// SinkFailures tracks batches a sink rejected.
	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_failures_total",
			Help: "Batches rejected by a downstream sink",
		},
		[]string{"sink"},
	)

	// BatchesFlushed tracks batches accepted by a sink.
	BatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_batches_flushed_total",
			Help: "Batches accepted by a downstream sink",
		},
		[]string{"sink"},
	)

	// ProcessDuration tracks per-item orchestration latency.
	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_process_duration_seconds",
			Help:    "Per-item processing duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)
