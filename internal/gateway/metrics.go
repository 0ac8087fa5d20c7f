package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal tracks adapter calls by outcome.
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_gateway_calls_total",
			Help: "Total broker adapter calls",
		},
		[]string{"broker", "op", "outcome"},
	)

	// CallDurationSeconds tracks adapter call latency.
	CallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execgw_gateway_call_duration_seconds",
			Help:    "Duration of broker adapter calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"broker", "op"},
	)

	// FailoversTotal counts calls that moved past the first broker.
	FailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_gateway_failovers_total",
			Help: "Total failovers to a lower-priority broker",
		},
		[]string{"op"},
	)

	// InternalErrorsTotal counts recovered adapter panics.
	InternalErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_gateway_internal_errors_total",
			Help: "Total recovered adapter panics",
		},
		[]string{"broker", "op"},
	)

	// ConsensusConfidence is the last consensus confidence per instrument.
	ConsensusConfidence = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "execgw_gateway_consensus_confidence",
			Help: "Fraction of registered brokers that answered the last consensus query",
		},
		[]string{"instrument"},
	)

	// ConsensusOutliersTotal counts quotes flagged as outliers.
	ConsensusOutliersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgw_gateway_consensus_outliers_total",
			Help: "Total quotes deviating more than the outlier threshold from the median",
		},
		[]string{"broker"},
	)

	// BrokerHealthStatus is 1 for the broker's current status label, 0 otherwise.
	BrokerHealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "execgw_gateway_broker_health",
			Help: "Current broker health status (1 = active status)",
		},
		[]string{"broker", "status"},
	)
)
