package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlatformCallsTotal tracks platform API calls per step and outcome kind
	PlatformCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_platform_calls_total",
			Help: "Total number of platform API calls",
		},
		[]string{"platform", "op", "kind"},
	)

	// PlatformLatency tracks platform API call latency
	PlatformLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialhub_platform_latency_seconds",
			Help:    "Platform API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform", "op"},
	)

	// RetriesTotal tracks in-process retries of platform calls
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_platform_retries_total",
			Help: "Total number of retried platform calls",
		},
		[]string{"platform", "kind"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "socialhub_platform_breaker_state",
			Help: "Circuit breaker state per platform",
		},
		[]string{"platform"},
	)

	// PublishTotal tracks publish attempts per platform and result
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_publish_total",
			Help: "Total number of publish attempts",
		},
		[]string{"platform", "result"},
	)

	// TokenRefreshTotal tracks access token refreshes per platform and result
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_token_refresh_total",
			Help: "Total number of access token refreshes",
		},
		[]string{"platform", "result"},
	)

	// JobsProcessed tracks queue jobs per type and result
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_jobs_processed_total",
			Help: "Total number of processed jobs",
		},
		[]string{"type", "result"},
	)

	// JobsDeadLettered tracks jobs dropped after exhausting their attempts
	JobsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_jobs_dead_lettered_total",
			Help: "Total number of jobs that exhausted their attempts",
		},
		[]string{"type"},
	)

	// QueueDepth tracks the number of pending jobs
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialhub_queue_depth",
			Help: "Number of pending jobs in the delayed queue",
		},
	)

	// WebhookUpdatesTotal tracks metric deltas applied from webhooks
	WebhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_webhook_updates_total",
			Help: "Total number of webhook metric updates",
		},
		[]string{"platform", "field"},
	)

	// WebhookRejectedTotal tracks webhook deliveries with bad signatures
	WebhookRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_webhook_rejected_total",
			Help: "Total number of rejected webhook deliveries",
		},
		[]string{"platform"},
	)

	// WebhookUpdatesFailedTotal tracks verified deltas that could not be stored
	WebhookUpdatesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_webhook_updates_failed_total",
			Help: "Total number of webhook updates dropped on storage errors",
		},
		[]string{"platform"},
	)
)

// DBConnectionPoolUsage tracks open connections as a percentage of the pool limit
var DBConnectionPoolUsage = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "socialhub_db_connection_pool_usage_percent",
		Help: "Database connection pool usage percentage",
	},
)
