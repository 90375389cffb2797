package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_gateway_webhooks_total",
			Help: "Total number of webhooks received, by outcome",
		},
		[]string{"provider", "outcome"},
	)

	WebhookBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kobliat_gateway_webhook_bytes_total",
			Help: "Total bytes of webhook payloads received",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kobliat_gateway_ingest_duration_seconds",
			Help:    "Duration of webhook ingestion in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kobliat_gateway_publish_failures_total",
			Help: "Webhooks stored whose event could not be published",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_gateway_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"key"},
	)

	// Orchestration metrics
	OrchestrationSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_gateway_orchestration_steps_total",
			Help: "Orchestration steps attempted, by step and status",
		},
		[]string{"step", "status"},
	)

	OrchestrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kobliat_gateway_orchestration_duration_seconds",
			Help:    "Duration of a full inbound orchestration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
