package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteCalls counts every call made against the backing table
	// Labels: op (read_all, append, update, delete), outcome (ok or an error kind)
	RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abx_remote_calls_total",
		Help: "Total number of calls made to the remote table",
	}, []string{"op", "outcome"})

	// CacheLookups tracks the read cache effectiveness
	// result: hit, miss, coalesced
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abx_cache_lookups_total",
		Help: "Read cache lookups by result",
	}, []string{"result"})

	// CacheInvalidations counts explicit invalidations (local writes and change-feed events)
	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abx_cache_invalidations_total",
		Help: "Number of read cache invalidations by source",
	}, []string{"source"})

	// WriteOps tracks how pending operations resolve
	WriteOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abx_write_operations_total",
		Help: "Pending operations resolved by the write coordinator",
	}, []string{"kind", "status"})

	// WriteRetries counts retries triggered by transient remote failures
	WriteRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abx_write_retries_total",
		Help: "Number of retries caused by transient remote failures",
	}, []string{"kind"})

	// AttemptDuration measures one remote attempt, including the partial-success probe
	// Spreadsheet APIs are slow; buckets go up to the per-attempt timeout
	AttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "abx_write_attempt_duration_seconds",
		Help:    "Duration of a single write attempt against the remote table",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	// QueueDepth is the number of operations still Queued
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abx_write_queue_depth",
		Help: "Current number of queued pending operations",
	})

	// InFlight is the number of operations currently talking to the remote table
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abx_write_in_flight",
		Help: "Current number of in-flight pending operations",
	})

	// ChangeEvents counts change-feed traffic
	// direction: published, received, ignored, failed
	ChangeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abx_change_events_total",
		Help: "Change-feed events by direction",
	}, []string{"direction"})

	// HealthStatus is 1 while the change-feed broker link is up
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abx_broker_healthy",
		Help: "Current health status of the change-feed broker link (1 healthy, 0 unhealthy)",
	})

	// BrokerReconnections counts how many times the watcher had to restore the broker link
	BrokerReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abx_broker_reconnections_total",
		Help: "Total number of change-feed broker reconnection attempts",
	})
)
