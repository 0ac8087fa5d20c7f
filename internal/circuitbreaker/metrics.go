package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerOpen indicates whether a broker's breaker is open.
	BreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execgw_circuit_breaker_open",
		Help: "Whether the broker circuit breaker is open (1=open, 0=closed)",
	}, []string{"broker"})

	// BreakerFailures tracks consecutive failures per broker.
	BreakerFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execgw_circuit_breaker_consecutive_failures",
		Help: "Consecutive failed calls per broker",
	}, []string{"broker"})

	// BreakerTransitionsTotal tracks state changes.
	BreakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_circuit_breaker_transitions_total",
		Help: "Total number of circuit breaker state changes",
	}, []string{"broker", "to"})
)
