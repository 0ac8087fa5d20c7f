package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutcomesTotal counts terminal outcomes.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_gate_outcomes_total",
			Help: "Total terminal gate outcomes",
		},
		[]string{"mode", "status", "reason"},
	)

	// DriftBpsHistogram tracks observed decision drift.
	DriftBpsHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "execgw_gate_drift_bps",
		Help:    "Observed drift between decision price and execution price in basis points",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
	})

	// ProcessDurationSeconds tracks time spent per order.
	ProcessDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execgw_gate_process_duration_seconds",
			Help:    "Duration of gate processing per order",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// RecordPersistErrorsTotal counts execution records that failed to persist.
	RecordPersistErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execgw_gate_record_persist_errors_total",
		Help: "Total execution records that could not be persisted",
	})

	// EnabledGauge is 1 when execution is enabled.
	EnabledGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execgw_gate_enabled",
		Help: "Whether execution is enabled (1) or disabled (0)",
	})
)
