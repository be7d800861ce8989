// Package metrics provides Prometheus instrumentation for the pacer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsStarted counts task invocations, retries included.
	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitepacer",
		Name:      "jobs_started_total",
		Help:      "Total number of task invocations, retries included.",
	}, []string{"site"})

	// JobsSucceeded counts jobs that settled successfully.
	JobsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitepacer",
		Name:      "jobs_succeeded_total",
		Help:      "Total number of jobs that settled successfully.",
	}, []string{"site"})

	// JobsFailed counts jobs that settled with an error after retries.
	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitepacer",
		Name:      "jobs_failed_total",
		Help:      "Total number of jobs that settled with an error.",
	}, []string{"site"})

	// JobRetries counts retry re-entries.
	JobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitepacer",
		Name:      "job_retries_total",
		Help:      "Total number of retry re-entries.",
	}, []string{"site"})

	// JobDuration tracks individual invocation duration.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sitepacer",
		Name:      "job_duration_seconds",
		Help:      "Duration of one task invocation in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"site"})

	// QueueDepth tracks jobs waiting behind each site's limits.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sitepacer",
		Name:      "queue_depth",
		Help:      "Number of jobs waiting behind a site's limits.",
	}, []string{"site"})

	// JobsRunning tracks currently running jobs per site.
	JobsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sitepacer",
		Name:      "jobs_running",
		Help:      "Number of currently running jobs per site.",
	}, []string{"site"})

	// ReservoirLevel tracks the remaining token reservoir per site.
	// Unlimited reservoirs report -1.
	ReservoirLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sitepacer",
		Name:      "reservoir_level",
		Help:      "Remaining token reservoir per site (-1 when unlimited).",
	}, []string{"site"})

	// SweepsTriggered counts sweep firings, including skipped overlaps.
	SweepsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitepacer",
		Name:      "sweeps_triggered_total",
		Help:      "Total number of sweep firings.",
	}, []string{"site", "outcome"})
)
