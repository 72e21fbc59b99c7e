// Package observability exposes Prometheus metrics and health endpoints
// for a running chat client.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_messages_sent_total",
			Help: "Total user messages dispatched, by outcome",
		},
		[]string{"outcome"}, // sent, queued_offline, rejected_duplicate, rejected_throttled
	)

	repliesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_replies_received_total",
			Help: "Total assistant replies received, by agent",
		},
		[]string{"agent"},
	)

	replyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatlink_reply_latency_seconds",
			Help:    "Time from message submission to correlated reply",
			Buckets: prometheus.DefBuckets,
		},
	)

	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatlink_reconnects_total",
			Help: "Total successful reconnects",
		},
	)

	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatlink_reconnect_attempts_total",
			Help: "Total reconnect attempts",
		},
	)

	pendingMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatlink_pending_messages",
			Help: "User messages currently awaiting a reply",
		},
	)

	offlineQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatlink_offline_queue_depth",
			Help: "Messages buffered while disconnected",
		},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_cancellations_total",
			Help: "Confirmed message cancellations, by scope",
		},
		[]string{"scope"}, // single, all
	)

	initOnce sync.Once
)

// InitMetrics registers the chat client metrics. Safe to call more than
// once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			messagesSent,
			repliesReceived,
			replyLatency,
			reconnects,
			reconnectAttempts,
			pendingMessages,
			offlineQueueDepth,
			cancellations,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordSend records the outcome of a send attempt.
func RecordSend(outcome string) {
	messagesSent.WithLabelValues(outcome).Inc()
}

// RecordReply records a received reply and, when known, its latency.
func RecordReply(agent string, latency time.Duration) {
	repliesReceived.WithLabelValues(agent).Inc()
	if latency > 0 {
		replyLatency.Observe(latency.Seconds())
	}
}

// RecordReconnectAttempt counts one reconnect attempt.
func RecordReconnectAttempt() {
	reconnectAttempts.Inc()
}

// RecordReconnect counts one successful reconnect.
func RecordReconnect() {
	reconnects.Inc()
}

// SetPendingMessages updates the pending gauge.
func SetPendingMessages(n int) {
	pendingMessages.Set(float64(n))
}

// SetOfflineQueueDepth updates the offline queue gauge.
func SetOfflineQueueDepth(n int) {
	offlineQueueDepth.Set(float64(n))
}

// RecordCancellation counts confirmed cancellations.
func RecordCancellation(scope string, count int) {
	cancellations.WithLabelValues(scope).Add(float64(count))
}
