package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message API metrics
	MessagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_messaging_messages_created_total",
			Help: "Messages created, by direction and channel",
		},
		[]string{"direction", "channel"},
	)

	MessageEdits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kobliat_messaging_message_edits_total",
			Help: "Body edits appended to the message history",
		},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kobliat_messaging_publish_failures_total",
			Help: "Messages stored whose event could not be published",
		},
	)

	EnqueueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kobliat_messaging_enqueue_failures_total",
			Help: "Outbound messages stored whose delivery job could not be queued",
		},
	)

	// Dispatch metrics
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_dispatch_attempts_total",
			Help: "Delivery attempts, by channel and result",
		},
		[]string{"channel", "result"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kobliat_dispatch_attempt_duration_seconds",
			Help:    "Duration of one delivery attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	DispatchTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kobliat_dispatch_jobs_finished_total",
			Help: "Jobs that reached a terminal state",
		},
		[]string{"state"},
	)

	DeadLetters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kobliat_dispatch_dead_letters_total",
			Help: "Jobs written to the dispatch dead-letter queue",
		},
	)
)
