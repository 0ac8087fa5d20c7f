package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts ticks by result (accepted, invalid, out_of_order).
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_feed_ticks_total",
			Help: "Ticks received from the market stream by result",
		},
		[]string{"result"},
	)

	// SubscriberDropsTotal counts ticks dropped on full subscriber channels.
	SubscriberDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execgw_feed_subscriber_drops_total",
		Help: "Ticks dropped because a subscriber channel was full",
	})

	// Status is 1 for the current feed status label.
	Status = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "execgw_feed_status",
			Help: "Current feed status (1 for the active status)",
		},
		[]string{"status"},
	)

	// TransitionsTotal counts status transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_feed_transitions_total",
			Help: "Feed status transitions",
		},
		[]string{"from", "to"},
	)

	// InstrumentAgeSeconds tracks the age of the last accepted tick.
	InstrumentAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "execgw_feed_instrument_age_seconds",
			Help: "Seconds since the last accepted tick per instrument",
		},
		[]string{"instrument"},
	)
)
