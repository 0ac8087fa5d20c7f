package gateway

import (
	"context"
	"time"

	"github.com/mselser95/execution-gateway/internal/audit"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

// Run probes every broker's health on the probe interval until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.probeInterval)
	defer ticker.Stop()

	g.ProbeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("gateway-probe-loop-stopping")
			return
		case <-ticker.C:
			g.ProbeAll(ctx)
		}
	}
}

// ProbeAll runs one health probe per broker. A HEALTHY probe on a broker whose
// breaker cool-down has elapsed resets the breaker.
func (g *Gateway) ProbeAll(ctx context.Context) {
	for _, e := range g.sorted() {
		h := g.probe(ctx, e)

		if h.Status == types.HealthHealthy && g.breakers.IsOpen(e.id) && !g.breakers.InCooldown(e.id) {
			g.breakers.Reset(e.id)
			g.audit.Record("gateway.breaker_reset", audit.OutcomeSuccess, map[string]any{
				"broker": string(e.id),
				"reason": "probe healthy after cool-down",
			})
			g.logger.Info("circuit-breaker-reset-by-probe", zap.String("broker", string(e.id)))
		}

		open := g.breakers.IsOpen(e.id)
		now := g.now()

		g.mu.Lock()
		prev := e.health.latest
		rate := e.health.errorRate()
		status := h.Status
		msg := h.Message
		if open {
			status = types.HealthUnhealthy
			msg = "circuit breaker open"
		}
		last := prev.LastSuccess
		if h.LastSuccess.After(last) {
			last = h.LastSuccess
		}
		e.health.push(healthAt(e.id, status, rate, last, msg, now))
		g.mu.Unlock()

		setHealthGauge(e.id, status)
		if status != prev.Status {
			g.logger.Info("broker-health-changed",
				zap.String("broker", string(e.id)),
				zap.String("from", string(prev.Status)),
				zap.String("to", string(status)))
		}
	}
}

func (g *Gateway) probe(ctx context.Context, e *entry) (h types.BrokerHealth) {
	cctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			InternalErrorsTotal.WithLabelValues(string(e.id), "health").Inc()
			g.logger.Error("broker-health-panic",
				zap.String("broker", string(e.id)),
				zap.Any("panic", r))
			h = types.BrokerHealth{Broker: e.id, Status: types.HealthUnhealthy, Message: "health probe panicked"}
		}
	}()

	h = e.adapter.Health(cctx)
	if h.Status == "" {
		h.Status = types.HealthUnknown
	}
	return h
}
