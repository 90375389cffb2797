package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_eventbus_published_total",
			Help: "Total number of envelopes accepted by the transport",
		},
		[]string{"transport", "topic"},
	)

	publishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_eventbus_publish_failures_total",
			Help: "Total number of envelopes the transport rejected",
		},
		[]string{"transport", "topic"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kobliat_eventbus_publish_duration_seconds",
			Help:    "Duration of successful transport sends in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)
)
