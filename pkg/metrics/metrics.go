// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatd_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// APICallDuration tracks calls made to the remote chat API.
	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_api_call_duration_seconds",
			Help:    "Remote chat API call duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"op", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// StreamConnectionsActive tracks open upstream event streams.
	StreamConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_stream_connections_active",
			Help: "Number of open per-thread event streams",
		},
	)

	// StreamEventsTotal counts stream events by type and outcome.
	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_stream_events_total",
			Help: "Stream events received, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// ThreadsListed tracks the size of the merged thread directory.
	ThreadsListed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_threads_listed",
			Help: "Number of threads in the merged directory",
		},
	)

	// ThreadsSuppressed counts threads dropped from snapshots by tombstones.
	ThreadsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_threads_suppressed_total",
			Help: "Threads suppressed from directory snapshots by pending deletions",
		},
	)

	// Reloads counts directory reloads by trigger.
	Reloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_directory_reloads_total",
			Help: "Directory reloads by trigger",
		},
		[]string{"trigger"},
	)

	// MessagesTotal tracks messages sent through the session.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"outcome"},
	)

	// ActionsTotal counts session actions by name and outcome.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_actions_total",
			Help: "Session actions by name and outcome",
		},
		[]string{"action", "outcome"},
	)

	// NATSPublishTotal counts projection publishes.
	NATSPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_total",
			Help: "Projection messages published to NATS",
		},
		[]string{"kind", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAPICall records a remote API call.
func RecordAPICall(op, status string, duration float64) {
	APICallDuration.WithLabelValues(op, status).Observe(duration)
}

// StatusLabel turns a response status and call error into a label value.
func StatusLabel(status int, err error) string {
	switch {
	case status != 0:
		return strconv.Itoa(status)
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// RecordAction records the outcome of a session action.
func RecordAction(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordStreamEvent records a stream event that was applied or discarded.
func RecordStreamEvent(eventType string, applied bool) {
	outcome := "applied"
	if !applied {
		outcome = "discarded"
	}
	StreamEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
