package gateway

import (
	"time"

	"github.com/mselser95/execution-gateway/pkg/types"
)

const (
	// DefaultHistorySize bounds the per-broker health history ring.
	DefaultHistorySize = 50

	// errorWindow is the number of recent calls the error rate covers.
	errorWindow = 20
)

// healthTracker holds the latest BrokerHealth, a bounded history and a
// rolling window of call outcomes. Guarded by Gateway.mu.
type healthTracker struct {
	latest  types.BrokerHealth
	history []types.BrokerHealth
	next    int
	full    bool

	outcomes []bool // true = failure
	outIdx   int
	outFull  bool
}

func newHealthTracker(id types.BrokerID, size int) *healthTracker {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &healthTracker{
		latest:   types.BrokerHealth{Broker: id, Status: types.HealthUnknown},
		history:  make([]types.BrokerHealth, size),
		outcomes: make([]bool, errorWindow),
	}
}

func (h *healthTracker) observe(failed bool) {
	h.outcomes[h.outIdx] = failed
	h.outIdx = (h.outIdx + 1) % len(h.outcomes)
	if h.outIdx == 0 {
		h.outFull = true
	}
}

func (h *healthTracker) errorRate() float64 {
	n := h.outIdx
	if h.outFull {
		n = len(h.outcomes)
	}
	if n == 0 {
		return 0
	}
	failed := 0
	for i := 0; i < n; i++ {
		if h.outcomes[i] {
			failed++
		}
	}
	return float64(failed) / float64(n)
}

func (h *healthTracker) push(bh types.BrokerHealth) {
	h.latest = bh
	h.history[h.next] = bh
	h.next = (h.next + 1) % len(h.history)
	if h.next == 0 {
		h.full = true
	}
}

// snapshot returns the history oldest first.
func (h *healthTracker) snapshot() []types.BrokerHealth {
	if !h.full {
		return append([]types.BrokerHealth(nil), h.history[:h.next]...)
	}
	out := make([]types.BrokerHealth, 0, len(h.history))
	out = append(out, h.history[h.next:]...)
	out = append(out, h.history[:h.next]...)
	return out
}

// classify derives a status from the breaker and the rolling error rate.
// An open breaker always reports UNHEALTHY.
func classify(breakerOpen bool, lastFailed bool, errorRate float64) types.HealthStatus {
	switch {
	case breakerOpen:
		return types.HealthUnhealthy
	case lastFailed || errorRate >= 0.5:
		return types.HealthDegraded
	default:
		return types.HealthHealthy
	}
}

func setHealthGauge(id types.BrokerID, status types.HealthStatus) {
	for _, s := range []types.HealthStatus{types.HealthHealthy, types.HealthDegraded, types.HealthUnhealthy, types.HealthUnknown} {
		v := 0.0
		if s == status {
			v = 1
		}
		BrokerHealthStatus.WithLabelValues(string(id), string(s)).Set(v)
	}
}

func healthAt(id types.BrokerID, status types.HealthStatus, rate float64, lastSuccess time.Time, msg string, now time.Time) types.BrokerHealth {
	return types.BrokerHealth{
		Broker:      id,
		Status:      status,
		ErrorRate:   rate,
		LastSuccess: lastSuccess,
		Message:     msg,
		CheckedAt:   now,
	}
}
