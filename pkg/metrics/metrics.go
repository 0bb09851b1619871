// Package metrics declares the Prometheus collectors the supervisor and
// its workers report to. Collectors are package-level promauto vars,
// matching the teacher's convention of registering once at import time
// rather than threading a registry through every constructor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myreplicate_events_processed_total",
		Help: "Total binlog and init-row events successfully applied, by target.",
	}, []string{"target"})

	EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myreplicate_events_filtered_total",
		Help: "Total events dropped by a table mapping's filter, by target.",
	}, []string{"target"})

	WorkerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myreplicate_worker_errors_total",
		Help: "Total errors recorded by a worker, by worker kind and name.",
	}, []string{"kind", "name"})

	BatchWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myreplicate_batch_writes_total",
		Help: "Total successful batch upsert flushes, by target.",
	}, []string{"target"})

	BatchWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myreplicate_batch_write_failures_total",
		Help: "Total batches dropped after exhausting retries, by target.",
	}, []string{"target"})

	BusQueueUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "myreplicate_bus_queue_usage_ratio",
		Help: "Fraction of the message bus capacity currently occupied.",
	})

	TargetQueueUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "myreplicate_target_queue_usage_ratio",
		Help: "Fraction of a target worker's inbound queue currently occupied.",
	}, []string{"target"})

	SourceRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myreplicate_source_restarts_total",
		Help: "Total times the supervisor restarted a crashed source worker.",
	}, []string{"source"})

	InitRowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myreplicate_init_rows_processed_total",
		Help: "Total rows published by an init snapshot worker, by mapping.",
	}, []string{"mapping"})

	ActiveWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "myreplicate_active_workers",
		Help: "Whether a worker is currently running (1) or not (0), by kind and name.",
	}, []string{"kind", "name"})
)
