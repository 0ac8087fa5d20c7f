package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepthGauge tracks pending orders per lane.
	DepthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "execgw_queue_depth",
			Help: "Number of orders waiting per lane",
		},
		[]string{"lane"},
	)

	// EnqueuedTotal counts accepted orders.
	EnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_queue_enqueued_total",
			Help: "Total orders enqueued",
		},
		[]string{"lane"},
	)

	// DispatchedTotal counts dispatched orders.
	DispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_queue_dispatched_total",
			Help: "Total orders dispatched",
		},
		[]string{"lane"},
	)

	// DeadLettersTotal counts orders moved to the dead-letter list.
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_queue_dead_letters_total",
			Help: "Total orders moved to the dead-letter list",
		},
		[]string{"lane"},
	)

	// WaitSeconds tracks time from enqueue to dispatch.
	WaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execgw_queue_wait_seconds",
			Help:    "Time orders spend queued before dispatch",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"lane"},
	)
)
