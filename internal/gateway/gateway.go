// Package gateway presents one fault-tolerant API over many broker adapters:
// priority failover, consensus pricing and per-broker circuit breaking.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/execution-gateway/internal/audit"
	"github.com/mselser95/execution-gateway/internal/broker"
	"github.com/mselser95/execution-gateway/internal/circuitbreaker"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

// Config holds gateway configuration.
type Config struct {
	Breakers      *circuitbreaker.Registry
	Audit         audit.Sink
	Logger        *zap.Logger
	CallTimeout   time.Duration
	ProbeInterval time.Duration
	HistorySize   int
	Now           func() time.Time // optional, for tests
}

// BrokerStatus combines a broker's health and breaker state.
type BrokerStatus struct {
	Broker   types.BrokerID          `json:"broker"`
	Priority int                     `json:"priority"`
	Health   types.BrokerHealth      `json:"health"`
	Breaker  circuitbreaker.Snapshot `json:"breaker"`
}

type entry struct {
	id       types.BrokerID
	adapter  broker.Adapter
	priority int
	seq      int
	health   *healthTracker
}

// Gateway owns the adapter map and per-broker health. Breaker state lives in
// the injected registry.
type Gateway struct {
	breakers      *circuitbreaker.Registry
	audit         audit.Sink
	logger        *zap.Logger
	callTimeout   time.Duration
	probeInterval time.Duration
	historySize   int
	now           func() time.Time

	mu      sync.RWMutex
	entries map[types.BrokerID]*entry
	seq     int
}

// New creates a gateway.
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry cannot be nil")
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("call timeout must be positive")
	}

	sink := cfg.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	probe := cfg.ProbeInterval
	if probe <= 0 {
		probe = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Gateway{
		breakers:      cfg.Breakers,
		audit:         sink,
		logger:        cfg.Logger,
		callTimeout:   cfg.CallTimeout,
		probeInterval: probe,
		historySize:   cfg.HistorySize,
		now:           now,
		entries:       make(map[types.BrokerID]*entry),
	}, nil
}

// Register adds an adapter. Lower priority values are tried first.
func (g *Gateway) Register(id types.BrokerID, adapter broker.Adapter, priority int) error {
	if id == "" || id == types.BrokerAuto {
		return fmt.Errorf("invalid broker id %q", id)
	}
	if adapter == nil {
		return fmt.Errorf("adapter cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.entries[id]; exists {
		return fmt.Errorf("broker %s already registered", id)
	}
	g.seq++
	g.entries[id] = &entry{
		id:       id,
		adapter:  adapter,
		priority: priority,
		seq:      g.seq,
		health:   newHealthTracker(id, g.historySize),
	}
	setHealthGauge(id, types.HealthUnknown)

	g.logger.Info("broker-registered",
		zap.String("broker", string(id)),
		zap.Int("priority", priority))
	return nil
}

// Brokers returns registered broker ids by ascending priority.
func (g *Gateway) Brokers() []types.BrokerID {
	sorted := g.sorted()
	out := make([]types.BrokerID, len(sorted))
	for i, e := range sorted {
		out[i] = e.id
	}
	return out
}

// ConnectAll connects every adapter. Failures are logged and folded into
// breaker state; they do not abort startup.
func (g *Gateway) ConnectAll(ctx context.Context) {
	for _, e := range g.sorted() {
		_, err := invoke(ctx, g, e, "connect", func(ctx context.Context, a broker.Adapter) (struct{}, error) {
			return struct{}{}, a.Connect(ctx)
		})
		if err != nil {
			g.logger.Warn("broker-connect-failed",
				zap.String("broker", string(e.id)),
				zap.Error(err))
		}
	}
}

// DisconnectAll disconnects every adapter.
func (g *Gateway) DisconnectAll(ctx context.Context) {
	for _, e := range g.sorted() {
		cctx, cancel := context.WithTimeout(ctx, g.callTimeout)
		if err := e.adapter.Disconnect(cctx); err != nil {
			g.logger.Warn("broker-disconnect-failed",
				zap.String("broker", string(e.id)),
				zap.Error(err))
		}
		cancel()
	}
}

// GetPrice returns the first successful quote in failover order.
func (g *Gateway) GetPrice(ctx context.Context, symbol, exchange string, hint types.BrokerID) (types.Quote, error) {
	price, id, err := failover(ctx, g, "get_price", hint, lastPrice(symbol, exchange, "get_price"))
	if err != nil {
		return types.Quote{}, err
	}
	return types.Quote{Broker: id, Price: price, FetchedAt: g.now()}, nil
}

// lastPrice fetches a last traded price. A non-positive price is a
// no-data failure so it counts against the broker's breaker.
func lastPrice(symbol, exchange, op string) func(context.Context, broker.Adapter) (float64, error) {
	return func(ctx context.Context, a broker.Adapter) (float64, error) {
		p, err := a.GetLastPrice(ctx, symbol, exchange)
		if err == nil && p <= 0 {
			err = types.NewRemoteError(a.ID(), op, types.RemoteNoData, fmt.Errorf("non-positive price %v", p))
		}
		return p, err
	}
}

// GetPositions returns positions from the first broker that answers.
func (g *Gateway) GetPositions(ctx context.Context, hint types.BrokerID) ([]types.Position, types.BrokerID, error) {
	return failover(ctx, g, "get_positions", hint, func(ctx context.Context, a broker.Adapter) ([]types.Position, error) {
		return a.GetPositions(ctx)
	})
}

// GetCandles returns historical candles from the first broker that answers.
func (g *Gateway) GetCandles(ctx context.Context, symbol, exchange, interval string, from, to time.Time, hint types.BrokerID) ([]types.Candle, types.BrokerID, error) {
	return failover(ctx, g, "get_candles", hint, func(ctx context.Context, a broker.Adapter) ([]types.Candle, error) {
		return a.GetHistoricalCandles(ctx, symbol, exchange, interval, from, to)
	})
}

// PlaceOrder sends the order to exactly one broker, the head of the failover
// order. A failure is returned as is and never re-sent elsewhere.
func (g *Gateway) PlaceOrder(ctx context.Context, order types.Order, hint types.BrokerID) (types.PlaceResult, error) {
	if err := order.Validate(); err != nil {
		return types.PlaceResult{}, err
	}
	candidates, err := g.order(hint)
	if err != nil {
		return types.PlaceResult{}, err
	}
	target := candidates[0]

	if g.breakers.IsOpen(target.id) {
		g.logger.Warn("placing-order-on-open-breaker",
			zap.String("broker", string(target.id)),
			zap.String("symbol", order.Symbol))
	}

	orderID, err := invoke(ctx, g, target, "place_order", func(ctx context.Context, a broker.Adapter) (string, error) {
		return a.PlaceOrder(ctx, order)
	})
	if err != nil {
		return types.PlaceResult{}, err
	}
	return types.PlaceResult{Broker: target.id, BrokerOrderID: orderID}, nil
}

// GetOrderStatus queries the broker that owns orderID.
func (g *Gateway) GetOrderStatus(ctx context.Context, id types.BrokerID, orderID string) (types.OrderStatus, error) {
	e, err := g.lookup(id)
	if err != nil {
		return types.OrderStatus{}, err
	}
	return invoke(ctx, g, e, "get_order_status", func(ctx context.Context, a broker.Adapter) (types.OrderStatus, error) {
		return a.GetOrderStatus(ctx, orderID)
	})
}

// Health returns the latest health of a broker.
func (g *Gateway) Health(id types.BrokerID) (types.BrokerHealth, error) {
	e, err := g.lookup(id)
	if err != nil {
		return types.BrokerHealth{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return e.health.latest, nil
}

// HealthHistory returns the bounded health history of a broker, oldest first.
func (g *Gateway) HealthHistory(id types.BrokerID) ([]types.BrokerHealth, error) {
	e, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return e.health.snapshot(), nil
}

// Status returns health and breaker state for every broker by priority.
func (g *Gateway) Status() []BrokerStatus {
	sorted := g.sorted()
	out := make([]BrokerStatus, 0, len(sorted))

	g.mu.RLock()
	for _, e := range sorted {
		out = append(out, BrokerStatus{
			Broker:   e.id,
			Priority: e.priority,
			Health:   e.health.latest,
		})
	}
	g.mu.RUnlock()

	for i := range out {
		out[i].Breaker = g.breakers.Snapshot(out[i].Broker)
	}
	return out
}

// ResetBreaker manually clears a broker's breaker.
func (g *Gateway) ResetBreaker(id types.BrokerID) error {
	e, err := g.lookup(id)
	if err != nil {
		return err
	}
	g.breakers.Reset(id)
	g.refresh(e, false, "circuit breaker reset")
	g.audit.Record("gateway.reset_breaker", audit.OutcomeSuccess, map[string]any{"broker": string(id)})
	return nil
}

// order returns the failover sequence for hint. A named hint goes first,
// followed by the remaining brokers in automatic order. Automatic order puts
// healthy brokers outside their cool-down first by priority and demotes the
// rest, which are still tried.
func (g *Gateway) order(hint types.BrokerID) ([]*entry, error) {
	sorted := g.sorted()
	if len(sorted) == 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrUnavailable, types.ErrNoBrokers)
	}

	var named *entry
	if hint != "" && hint != types.BrokerAuto {
		e, err := g.lookup(hint)
		if err != nil {
			return nil, err
		}
		named = e
	}

	g.mu.RLock()
	statuses := make(map[types.BrokerID]types.HealthStatus, len(sorted))
	for _, e := range sorted {
		statuses[e.id] = e.health.latest.Status
	}
	g.mu.RUnlock()

	preferred := make([]*entry, 0, len(sorted)+1)
	var demoted []*entry
	if named != nil {
		preferred = append(preferred, named)
	}
	for _, e := range sorted {
		if e == named {
			continue
		}
		if g.breakers.InCooldown(e.id) || statuses[e.id] == types.HealthUnhealthy {
			demoted = append(demoted, e)
			continue
		}
		preferred = append(preferred, e)
	}
	return append(preferred, demoted...), nil
}

func (g *Gateway) sorted() []*entry {
	g.mu.RLock()
	out := make([]*entry, 0, len(g.entries))
	for _, e := range g.entries {
		out = append(out, e)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (g *Gateway) lookup(id types.BrokerID) (*entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownBroker, id)
	}
	return e, nil
}

// record folds one call outcome into breaker and health state.
func (g *Gateway) record(e *entry, failed bool, msg string) {
	if failed {
		g.breakers.RecordFailure(e.id)
	} else {
		g.breakers.RecordSuccess(e.id)
	}
	g.refresh(e, failed, msg)
}

// refresh recomputes the broker's health after a call, reset or probe.
func (g *Gateway) refresh(e *entry, failed bool, msg string) {
	open := g.breakers.IsOpen(e.id)
	now := g.now()

	g.mu.Lock()
	e.health.observe(failed)
	rate := e.health.errorRate()
	last := e.health.latest.LastSuccess
	if !failed {
		last = now
	}
	status := classify(open, failed, rate)
	if open {
		msg = fmt.Sprintf("circuit breaker open (%d consecutive failures)", g.breakers.Failures(e.id))
	}
	e.health.push(healthAt(e.id, status, rate, last, msg, now))
	g.mu.Unlock()

	setHealthGauge(e.id, status)
}

// invoke runs one adapter call with the per-call timeout, recovers panics
// into *types.InternalError, classifies errors and records the outcome.
func invoke[T any](ctx context.Context, g *Gateway, e *entry, op string, fn func(context.Context, broker.Adapter) (T, error)) (result T, err error) {
	cctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &types.InternalError{Broker: e.id, Op: op, Cause: r}
			}
		}()
		result, err = fn(cctx, e.adapter)
	}()
	CallDurationSeconds.WithLabelValues(string(e.id), op).Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() != nil && !types.IsInternal(err) {
		// Caller went away; not the broker's fault.
		CallsTotal.WithLabelValues(string(e.id), op, "canceled").Inc()
		var zero T
		return zero, ctx.Err()
	}

	meta := map[string]any{"broker": string(e.id), "op": op}
	switch {
	case err == nil:
		CallsTotal.WithLabelValues(string(e.id), op, "success").Inc()
		g.record(e, false, "")
		g.audit.Record("gateway."+op, audit.OutcomeSuccess, meta)
		return result, nil

	case types.IsInternal(err):
		InternalErrorsTotal.WithLabelValues(string(e.id), op).Inc()
		g.logger.Error("broker-internal-error",
			zap.String("broker", string(e.id)),
			zap.String("op", op),
			zap.Error(err))

	default:
		var re *types.RemoteError
		if !errors.As(err, &re) {
			err = types.NewRemoteError(e.id, op, types.RemoteUnavailable, err)
		}
		g.logger.Debug("broker-call-failed",
			zap.String("broker", string(e.id)),
			zap.String("op", op),
			zap.Error(err))
	}

	CallsTotal.WithLabelValues(string(e.id), op, "failure").Inc()
	g.record(e, true, err.Error())
	meta["error"] = err.Error()
	g.audit.Record("gateway."+op, audit.OutcomeFailure, meta)

	var zero T
	return zero, err
}

// failover tries brokers in order until one succeeds. Internal errors stop
// the walk and propagate.
func failover[T any](ctx context.Context, g *Gateway, op string, hint types.BrokerID, fn func(context.Context, broker.Adapter) (T, error)) (T, types.BrokerID, error) {
	var zero T

	candidates, err := g.order(hint)
	if err != nil {
		return zero, "", err
	}

	errs := make([]error, 0, len(candidates))
	for i, e := range candidates {
		if i > 0 {
			FailoversTotal.WithLabelValues(op).Inc()
		}
		v, err := invoke(ctx, g, e, op, fn)
		if err == nil {
			return v, e.id, nil
		}
		if types.IsInternal(err) {
			return zero, "", err
		}
		if ctx.Err() != nil {
			return zero, "", ctx.Err()
		}
		errs = append(errs, err)
	}

	return zero, "", fmt.Errorf("%w: %s failed on all %d brokers: %w",
		types.ErrUnavailable, op, len(candidates), errors.Join(errs...))
}
