package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections is 1 while the stream is connected.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execgw_ws_active_connections",
		Help: "Number of active market data WebSocket connections",
	})

	// ReconnectAttemptsTotal tracks connection attempts after the first.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execgw_ws_reconnect_attempts_total",
		Help: "Total number of WebSocket reconnection attempts",
	})

	// ReconnectFailuresTotal tracks failed connection attempts.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execgw_ws_reconnect_failures_total",
		Help: "Total number of WebSocket connection failures",
	})

	// ExhaustedTotal counts entries into the long cool-down.
	ExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execgw_ws_exhausted_total",
		Help: "Total times the reconnection budget was exhausted",
	})

	// MessagesReceivedTotal tracks frames by kind.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_ws_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"kind"},
	)

	// SubscriptionCount tracks subscribed instruments.
	SubscriptionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execgw_ws_subscription_count",
		Help: "Number of subscribed instruments",
	})

	// ConnectionDuration tracks connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "execgw_ws_connection_duration_seconds",
		Help:    "Duration of WebSocket connections before disconnect",
		Buckets: []float64{1, 10, 60, 300, 600, 1800, 3600, 14400, 43200, 86400},
	})
)
