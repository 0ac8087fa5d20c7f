// Package gate is the single choke point every order passes before it can
// reach a broker. Checks run in a fixed order and any of them can end the
// attempt with an enumerated block reason.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/execution-gateway/internal/audit"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

const (
	DefaultFreshness     = 5 * time.Second
	DefaultDriftBps      = 10.0
	DefaultIndexDriftBps = 5.0
)

// FeedSource is the feed health consumer API.
type FeedSource interface {
	Snapshot(now time.Time) types.FeedState
	LatestPrice(symbol, exchange string) (price float64, at time.Time, ok bool)
}

// Broker is the part of the gateway the gate needs.
type Broker interface {
	GetPrice(ctx context.Context, symbol, exchange string, hint types.BrokerID) (types.Quote, error)
	PlaceOrder(ctx context.Context, order types.Order, hint types.BrokerID) (types.PlaceResult, error)
}

// RiskChecker is the account risk collaborator. An error is treated as a
// refusal.
type RiskChecker interface {
	CheckRisk(ctx context.Context, symbol string, quantity int64, price float64) (types.RiskResult, error)
}

// RecordStore persists execution records.
type RecordStore interface {
	SaveExecution(ctx context.Context, rec *types.ExecutionRecord) error
}

// Config holds gate configuration.
type Config struct {
	Feed          FeedSource
	Broker        Broker
	Risk          RiskChecker // optional, nil allows everything
	Store         RecordStore // optional
	Audit         audit.Sink
	Logger        *zap.Logger
	Mode          types.ExecutionMode
	Enabled       bool
	Freshness     time.Duration
	DriftBps      float64
	IndexDriftBps float64
	IndexSymbols  []string
	FeedScope     FeedScope
	Guardrails    []Guardrail
	CallTimeout   time.Duration
	Now           func() time.Time // optional, for tests
}

// Gate evaluates and dispatches orders. It keeps no durable state beyond the
// records it emits.
type Gate struct {
	feed        FeedSource
	broker      Broker
	risk        RiskChecker
	store       RecordStore
	audit       audit.Sink
	logger      *zap.Logger
	policy      Policy
	callTimeout time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	mode    types.ExecutionMode
	enabled bool
}

// New creates a gate.
func New(cfg *Config) (*Gate, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Feed == nil {
		return nil, fmt.Errorf("feed source cannot be nil")
	}
	if cfg.Broker == nil {
		return nil, fmt.Errorf("broker cannot be nil")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = types.ModeDryRun
	}
	if mode != types.ModeDryRun && mode != types.ModeLive {
		return nil, fmt.Errorf("invalid execution mode: %s", mode)
	}

	policy := Policy{
		Freshness:     cfg.Freshness,
		DriftBps:      cfg.DriftBps,
		IndexDriftBps: cfg.IndexDriftBps,
		IndexSymbols:  make(map[string]bool, len(cfg.IndexSymbols)),
		Scope:         cfg.FeedScope,
		Guardrails:    cfg.Guardrails,
	}
	if policy.Freshness <= 0 {
		policy.Freshness = DefaultFreshness
	}
	if policy.DriftBps <= 0 {
		policy.DriftBps = DefaultDriftBps
	}
	if policy.IndexDriftBps <= 0 {
		policy.IndexDriftBps = DefaultIndexDriftBps
	}
	if policy.Scope == "" {
		policy.Scope = FeedScopeSymbol
	}
	for _, s := range cfg.IndexSymbols {
		policy.IndexSymbols[strings.ToUpper(strings.TrimSpace(s))] = true
	}

	g := &Gate{
		feed:        cfg.Feed,
		broker:      cfg.Broker,
		risk:        cfg.Risk,
		store:       cfg.Store,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		policy:      policy,
		callTimeout: cfg.CallTimeout,
		now:         cfg.Now,
		mode:        mode,
		enabled:     cfg.Enabled,
	}
	if g.audit == nil {
		g.audit = audit.Nop{}
	}
	if g.callTimeout <= 0 {
		g.callTimeout = 10 * time.Second
	}
	if g.now == nil {
		g.now = time.Now
	}
	EnabledGauge.Set(boolGauge(g.enabled))
	return g, nil
}

// SetEnabled flips the global execution switch.
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	g.enabled = enabled
	g.mu.Unlock()

	EnabledGauge.Set(boolGauge(enabled))
	g.logger.Warn("execution-toggled", zap.Bool("enabled", enabled))
	g.audit.Record("gate.toggle", audit.OutcomeSuccess, map[string]any{"enabled": enabled})
}

// SetMode switches between DRY_RUN and LIVE.
func (g *Gate) SetMode(mode types.ExecutionMode) error {
	if mode != types.ModeDryRun && mode != types.ModeLive {
		return fmt.Errorf("invalid execution mode: %s", mode)
	}
	g.mu.Lock()
	g.mode = mode
	g.mu.Unlock()

	g.logger.Warn("execution-mode-changed", zap.String("mode", string(mode)))
	g.audit.Record("gate.mode", audit.OutcomeSuccess, map[string]any{"mode": string(mode)})
	return nil
}

// Mode returns the current mode and enabled flag.
func (g *Gate) Mode() (types.ExecutionMode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode, g.enabled
}

// Dispatch implements queue.Dispatcher. Blocked orders are a normal
// outcome; failed dispatches and invariant errors are returned.
func (g *Gate) Dispatch(ctx context.Context, req types.OrderRequest) error {
	_, err := g.Process(ctx, req)
	return err
}

// Process runs one order through the gate and writes exactly one execution
// record and one alert. The returned error is non-nil for FAILED outcomes
// and for LIVE orders without a decision.
func (g *Gate) Process(ctx context.Context, req types.OrderRequest) (*types.ExecutionRecord, error) {
	start := time.Now()
	in := g.capture(ctx, req)
	defer func() {
		ProcessDurationSeconds.WithLabelValues(string(in.Mode)).Observe(time.Since(start).Seconds())
	}()

	rec := &types.ExecutionRecord{
		ID:        uuid.NewString(),
		RequestID: req.RequestID,
		Symbol:    req.Order.Symbol,
		Exchange:  req.Order.Exchange,
		Side:      req.Order.Side,
		Quantity:  req.Order.Quantity,
		Price:     in.Price,
		Mode:      in.Mode,
		CreatedAt: in.Now,
	}
	if req.Decision != nil {
		id := req.Decision.ID
		rec.DecisionID = &id
	}

	if err := req.Order.Validate(); err != nil {
		rec.FeedState = in.Feed.Status
		rec.Status = types.StatusFailed
		rec.Error = err.Error()
		g.finish(ctx, rec, StateFailed)
		return rec, err
	}

	v := g.policy.Evaluate(in)
	rec.FeedState = v.FeedStatus
	rec.DriftBps = v.DriftBps
	if v.DriftBps != nil {
		DriftBpsHistogram.Observe(*v.DriftBps)
	}

	if !v.Passed() {
		reason := v.Reason
		rec.Status = types.StatusBlocked
		rec.BlockReason = &reason
		rec.BlockDetail = v.Detail
		g.finish(ctx, rec, v.Stage)
		if reason == types.BlockMissingDecision {
			return rec, types.ErrMissingDecision
		}
		return rec, nil
	}

	return g.dispatch(ctx, req, in, rec)
}

// capture takes the per-order snapshot at gate entry.
func (g *Gate) capture(ctx context.Context, req types.OrderRequest) Inputs {
	now := g.now()
	g.mu.RLock()
	mode, enabled := g.mode, g.enabled
	g.mu.RUnlock()

	in := Inputs{
		Order:    req.Order,
		Decision: req.Decision,
		Mode:     mode,
		Enabled:  enabled,
		Feed:     g.feed.Snapshot(now),
		Now:      now,
		Risk:     types.RiskResult{Allowed: true},
	}
	if mode == types.ModeLive && req.Decision == nil {
		return in
	}

	in.Price, in.PriceAt = g.price(ctx, req.Order)

	if g.risk != nil {
		rctx, cancel := context.WithTimeout(ctx, g.callTimeout)
		res, err := g.risk.CheckRisk(rctx, req.Order.Symbol, req.Order.Quantity, in.Price)
		cancel()
		if err != nil {
			res = types.RiskResult{Allowed: false, Reason: fmt.Sprintf("risk check failed: %v", err)}
		}
		in.Risk = res
	}
	return in
}

// price prefers the feed's latest tick and falls back to the gateway. A
// broker last traded price carries no trade time, so the fallback price
// is reported with a zero timestamp and the order blocks as STALE_LTP.
// The price still feeds the risk check and the execution record.
func (g *Gate) price(ctx context.Context, order types.Order) (float64, time.Time) {
	if p, at, ok := g.feed.LatestPrice(order.Symbol, order.Exchange); ok && p > 0 {
		return p, at
	}

	pctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	q, err := g.broker.GetPrice(pctx, order.Symbol, order.Exchange, types.BrokerAuto)
	if err != nil {
		g.logger.Warn("gate-price-unavailable",
			zap.String("symbol", order.Symbol),
			zap.Error(err))
		return 0, time.Time{}
	}
	return q.Price, time.Time{}
}

func (g *Gate) dispatch(ctx context.Context, req types.OrderRequest, in Inputs, rec *types.ExecutionRecord) (*types.ExecutionRecord, error) {
	if in.Mode == types.ModeDryRun {
		orderID := "dry-" + uuid.NewString()
		rec.Status = types.StatusDryRun
		rec.BrokerOrderID = &orderID
		g.finish(ctx, rec, StateDryRunExecuted)
		return rec, nil
	}

	g.logger.Debug("order-dispatching",
		zap.String("request-id", req.RequestID),
		zap.String("stage", string(StateDispatching)))
	res, err := g.broker.PlaceOrder(ctx, req.Order, types.BrokerID(req.BrokerHint))
	if err != nil {
		rec.Status = types.StatusFailed
		rec.Error = err.Error()
		g.finish(ctx, rec, StateFailed)
		return rec, fmt.Errorf("place order %s: %w", req.Order.Symbol, err)
	}

	broker := res.Broker
	orderID := res.BrokerOrderID
	rec.Status = types.StatusLive
	rec.Broker = &broker
	rec.BrokerOrderID = &orderID
	g.finish(ctx, rec, StateLiveExecuted)
	return rec, nil
}

// finish persists the record and emits the alert for a terminal outcome.
func (g *Gate) finish(ctx context.Context, rec *types.ExecutionRecord, stage State) {
	reason := ""
	if rec.BlockReason != nil {
		reason = string(*rec.BlockReason)
	}
	OutcomesTotal.WithLabelValues(string(rec.Mode), string(rec.Status), reason).Inc()

	if g.store != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.callTimeout)
		if err := g.store.SaveExecution(sctx, rec); err != nil {
			RecordPersistErrorsTotal.Inc()
			g.logger.Error("execution-record-persist-failed",
				zap.String("record-id", rec.ID),
				zap.Error(err))
		}
		cancel()
	}

	meta := map[string]any{
		"record_id":  rec.ID,
		"request_id": rec.RequestID,
		"symbol":     rec.Symbol,
		"side":       string(rec.Side),
		"quantity":   rec.Quantity,
		"price":      rec.Price,
		"mode":       string(rec.Mode),
		"feed_state": string(rec.FeedState),
		"stage":      string(stage),
	}
	if reason != "" {
		meta["block_reason"] = reason
		meta["block_detail"] = rec.BlockDetail
	}
	if rec.DriftBps != nil {
		meta["drift_bps"] = *rec.DriftBps
	}
	if rec.BrokerOrderID != nil {
		meta["broker_order_id"] = *rec.BrokerOrderID
	}
	if rec.Broker != nil {
		meta["broker"] = string(*rec.Broker)
	}
	if rec.Error != "" {
		meta["error"] = rec.Error
	}

	fields := []zap.Field{
		zap.String("record-id", rec.ID),
		zap.String("symbol", rec.Symbol),
		zap.String("status", string(rec.Status)),
		zap.String("stage", string(stage)),
	}
	switch rec.Status {
	case types.StatusBlocked:
		g.audit.Record("gate.execution", audit.OutcomeBlocked, meta)
		g.logger.Warn("order-blocked", append(fields,
			zap.String("reason", reason),
			zap.String("detail", rec.BlockDetail))...)
	case types.StatusFailed:
		g.audit.Record("gate.execution", audit.OutcomeFailure, meta)
		g.logger.Error("order-failed", append(fields, zap.String("error", rec.Error))...)
	case types.StatusDryRun:
		g.audit.Record("gate.execution", audit.OutcomeDryRun, meta)
		g.logger.Info("order-dry-run", fields...)
	default:
		g.audit.Record("gate.execution", audit.OutcomeSuccess, meta)
		g.logger.Info("order-executed", fields...)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
