// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reschedule batch job metrics.
	RescheduleRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reschedule_runs_total",
			Help: "Total number of reschedule batch runs",
		},
	)

	RescheduleUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reschedule_updates_total",
			Help: "Total number of event documents rewritten by the batch job",
		},
	)

	RescheduleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reschedule_errors_total",
			Help: "Total number of per-document failures during batch runs",
		},
	)

	// HTTP metrics.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
