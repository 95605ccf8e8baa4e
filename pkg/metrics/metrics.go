package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Status transition attempts per entity
	StatusTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_transition_count",
			Help: "Total number of entity status transition attempts",
		},
		[]string{"entity", "from", "to", "outcome"}, // outcome: ok, rejected, conflict
	)

	// Match saga step completions
	MatchSagaStepCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_saga_step_count",
			Help: "Total number of completed match saga steps",
		},
		[]string{"step", "outcome"}, // outcome: ok, failed, compensated
	)

	// Escrow funds released (minor units)
	EscrowReleasedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_released_amount_total",
			Help: "Total escrow amount released, in minor currency units",
		},
		[]string{"currency"},
	)

	// Outbox publish attempts
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Total number of outbox event publish attempts",
		},
		[]string{"routing_key", "outcome"}, // outcome: ok, failed
	)

	// MQ consume latency (milliseconds)
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)
)

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordTransition records a status transition attempt.
func RecordTransition(entity, from, to, outcome string) {
	StatusTransitionCount.WithLabelValues(entity, from, to, outcome).Inc()
}

// RecordSagaStep records a match saga step result.
func RecordSagaStep(step, outcome string) {
	MatchSagaStepCount.WithLabelValues(step, outcome).Inc()
}

// RecordEscrowRelease records released escrow funds.
func RecordEscrowRelease(currency string, amount int64) {
	EscrowReleasedAmount.WithLabelValues(currency).Add(float64(amount))
}

// RecordOutboxPublish records an outbox publish attempt.
func RecordOutboxPublish(routingKey, outcome string) {
	OutboxPublishCount.WithLabelValues(routingKey, outcome).Inc()
}

// RecordMQConsumeLatency records MQ consumption latency.
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}
