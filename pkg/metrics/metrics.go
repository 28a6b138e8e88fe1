// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConnectionsActive tracks active websocket connections per namespace.
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active websocket connections",
		},
		[]string{"namespace"},
	)

	// ConnectionsEvicted tracks connections closed by single-session eviction.
	ConnectionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_connections_evicted_total",
			Help: "Connections closed because the user signed in elsewhere",
		},
	)

	// BroadcastsDelivered tracks events delivered to room members.
	BroadcastsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_delivered_total",
			Help: "Events delivered to room members",
		},
		[]string{"event"},
	)

	// BroadcastsDropped tracks events dropped because a peer's send queue
	// was full.
	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_dropped_total",
			Help: "Events dropped due to send queue backpressure",
		},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks messages sent by type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"type"},
	)

	// NotificationsTotal tracks notifications created by type.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total notifications created",
		},
		[]string{"type"},
	)

	// TypingExpirations tracks typing indicators cleared by the idle timer.
	TypingExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "typing_expirations_total",
			Help: "Typing indicators cleared by the idle timeout",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
