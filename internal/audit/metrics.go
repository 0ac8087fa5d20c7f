package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsRecordedTotal tracks audit events accepted into the buffer.
	EventsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_audit_events_total",
		Help: "Total number of audit events recorded",
	}, []string{"event_type", "outcome"})

	// EventsDroppedTotal tracks events that could not be buffered.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_audit_events_dropped_total",
		Help: "Total number of audit events dropped",
	}, []string{"reason"})
)
