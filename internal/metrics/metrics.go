// Package metrics provides Prometheus metrics for Flare.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "flare"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Receipt pipeline metrics
var (
	// ReceiptsTotal counts processed receipts by pipeline outcome.
	ReceiptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "receipts_total",
			Help:      "Total alert receipts by outcome",
		},
		[]string{"outcome"},
	)

	// ClassificationsTotal counts classifier decisions.
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "classifications_total",
			Help:      "Classifier decisions by path (created, deduplicated, correlated)",
		},
		[]string{"path"},
	)

	// PluginErrorsTotal counts isolated plugin failures.
	PluginErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "plugin_errors_total",
			Help:      "Plugin hook failures by plugin name and hook",
		},
		[]string{"plugin", "hook"},
	)

	// ProcessDuration tracks end-to-end receipt processing latency.
	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "process_duration_seconds",
			Help:      "Receipt processing latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)

// Notification metrics
var (
	// NotificationsPlanned counts planned deliveries by channel.
	NotificationsPlanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "planned_total",
			Help:      "Planned notification deliveries by channel",
		},
		[]string{"channel"},
	)

	// NotificationsFailed counts failed deliveries by channel.
	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failed_total",
			Help:      "Failed notification deliveries by channel",
		},
		[]string{"channel"},
	)
)

// Sweep metrics
var (
	// AlertsExpired counts alerts expired by the housekeeping sweep.
	AlertsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "alerts_expired_total",
			Help:      "Alerts expired after timeout",
		},
	)

	// AlertsUnshelved counts alerts unshelved by the housekeeping sweep.
	AlertsUnshelved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "alerts_unshelved_total",
			Help:      "Alerts unshelved after timeout",
		},
	)

	// AlertsEscalated counts alerts escalated by the escalation sweep.
	AlertsEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "alerts_escalated_total",
			Help:      "Alerts escalated to a more urgent severity",
		},
	)
)
