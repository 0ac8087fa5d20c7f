// Package feed tracks market data health and the latest accepted tick
// per instrument.
package feed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mselser95/execution-gateway/internal/audit"
	"github.com/mselser95/execution-gateway/pkg/cache"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

const (
	// DefaultStaleAfter is the tick age beyond which an instrument degrades.
	DefaultStaleAfter = 15 * time.Second

	// DefaultCheckInterval is how often Run reclassifies the feed.
	DefaultCheckInterval = 5 * time.Second

	// DefaultTickTTL bounds how long a tick stays in the cache.
	DefaultTickTTL = 30 * time.Second

	// DefaultSubscriberBuffer is the channel size handed to subscribers.
	DefaultSubscriberBuffer = 64
)

// Config holds monitor configuration.
type Config struct {
	Cache            cache.Cache[types.Tick]
	Audit            audit.Sink
	Logger           *zap.Logger
	StaleAfter       time.Duration
	CheckInterval    time.Duration
	TickTTL          time.Duration
	SubscriberBuffer int
	Now              func() time.Time
}

type metricsReporter interface {
	ReportMetrics()
}

type instrument struct {
	lastAccepted time.Time // tick timestamp
	lastSeen     time.Time // wall clock at acceptance
}

// Monitor owns the feed state. It is the stream client's listener and
// the gate's price source.
type Monitor struct {
	cache         cache.Cache[types.Tick]
	audit         audit.Sink
	logger        *zap.Logger
	staleAfter    time.Duration
	checkInterval time.Duration
	tickTTL       time.Duration
	buffer        int
	now           func() time.Time

	mu          sync.RWMutex
	connected   bool
	exhausted   bool
	subscribed  map[string]bool
	instruments map[string]*instrument
	subs        map[string]map[int]chan types.Tick
	nextSubID   int
	status      types.FeedStatus
}

// New creates a feed monitor. The feed starts DOWN until the stream
// reports a connection.
func New(cfg *Config) (*Monitor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	m := &Monitor{
		cache:         cfg.Cache,
		audit:         cfg.Audit,
		logger:        cfg.Logger,
		staleAfter:    cfg.StaleAfter,
		checkInterval: cfg.CheckInterval,
		tickTTL:       cfg.TickTTL,
		buffer:        cfg.SubscriberBuffer,
		now:           cfg.Now,
		subscribed:    make(map[string]bool),
		instruments:   make(map[string]*instrument),
		subs:          make(map[string]map[int]chan types.Tick),
		status:        types.FeedDown,
	}
	if m.audit == nil {
		m.audit = audit.Nop{}
	}
	if m.staleAfter <= 0 {
		m.staleAfter = DefaultStaleAfter
	}
	if m.checkInterval <= 0 {
		m.checkInterval = DefaultCheckInterval
	}
	if m.tickTTL <= 0 {
		m.tickTTL = DefaultTickTTL
	}
	if m.buffer <= 0 {
		m.buffer = DefaultSubscriberBuffer
	}
	if m.now == nil {
		m.now = time.Now
	}

	setStatusGauge(types.FeedDown)
	return m, nil
}

// OnTick validates and applies one tick. It returns false when the tick
// was discarded.
func (m *Monitor) OnTick(t types.Tick) bool {
	if !valid(t) {
		TicksTotal.WithLabelValues("invalid").Inc()
		m.logger.Debug("tick-discarded-invalid",
			zap.String("symbol", t.Symbol),
			zap.String("exchange", t.Exchange),
			zap.Float64("price", t.Price))
		return false
	}

	key := t.Key()
	now := m.now()

	m.mu.Lock()
	inst, ok := m.instruments[key]
	if ok && t.Timestamp.Before(inst.lastAccepted) {
		m.mu.Unlock()
		TicksTotal.WithLabelValues("out_of_order").Inc()
		m.logger.Debug("tick-discarded-out-of-order",
			zap.String("instrument", key),
			zap.Time("tick-ts", t.Timestamp),
			zap.Time("last-accepted", inst.lastAccepted))
		return false
	}
	if !ok {
		inst = &instrument{}
		m.instruments[key] = inst
	}
	inst.lastAccepted = t.Timestamp
	inst.lastSeen = now

	for _, ch := range m.subs[key] {
		select {
		case ch <- t:
		default:
			SubscriberDropsTotal.Inc()
		}
	}
	m.cache.Set(cache.TickKey(t.Exchange, t.Symbol), t, m.tickTTL)
	m.mu.Unlock()

	TicksTotal.WithLabelValues("accepted").Inc()
	return true
}

func valid(t types.Tick) bool {
	if t.Symbol == "" || t.Exchange == "" || t.Timestamp.IsZero() {
		return false
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return false
	}
	return true
}

// Subscribe returns a channel of accepted ticks for one instrument and
// a cancel func. Ticks are dropped when the channel is full.
func (m *Monitor) Subscribe(key string) (<-chan types.Tick, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++

	ch := make(chan types.Tick, m.buffer)
	if m.subs[key] == nil {
		m.subs[key] = make(map[int]chan types.Tick)
	}
	m.subs[key][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[key], id)
			if len(m.subs[key]) == 0 {
				delete(m.subs, key)
			}
			close(ch)
		})
	}
}

// Track marks instruments as subscribed on the stream.
func (m *Monitor) Track(keys ...string) {
	m.mu.Lock()
	for _, k := range keys {
		m.subscribed[k] = true
	}
	m.mu.Unlock()
	m.check()
}

// Untrack removes instruments from classification.
func (m *Monitor) Untrack(keys ...string) {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.subscribed, k)
	}
	m.mu.Unlock()
	m.check()
}

// SetConnected records the stream connection state.
func (m *Monitor) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
	m.check()
}

// SetExhausted records whether reconnection has been exhausted.
func (m *Monitor) SetExhausted(exhausted bool) {
	m.mu.Lock()
	m.exhausted = exhausted
	m.mu.Unlock()
	m.check()
}

// Snapshot classifies the feed as of now.
func (m *Monitor) Snapshot(now time.Time) types.FeedState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(now)
}

func (m *Monitor) snapshotLocked(now time.Time) types.FeedState {
	st := types.FeedState{
		Connected:    m.connected,
		Exhausted:    m.exhausted,
		AgeMs:        make(map[string]int64, len(m.instruments)),
		LastAccepted: make(map[string]time.Time, len(m.instruments)),
		Instruments:  make(map[string]types.FeedStatus, len(m.subscribed)),
		TakenAt:      now,
	}

	for key, inst := range m.instruments {
		st.AgeMs[key] = now.Sub(inst.lastSeen).Milliseconds()
		st.LastAccepted[key] = inst.lastAccepted
	}

	down := !m.connected || m.exhausted
	degraded := false
	for key := range m.subscribed {
		status := types.FeedHealthy
		inst, ok := m.instruments[key]
		switch {
		case down:
			status = types.FeedDown
		case !ok:
			status = types.FeedDegraded
		case now.Sub(inst.lastSeen) > m.staleAfter:
			status = types.FeedDegraded
		}
		if status == types.FeedDegraded {
			degraded = true
		}
		st.Instruments[key] = status
	}

	switch {
	case down:
		st.Status = types.FeedDown
	case degraded:
		st.Status = types.FeedDegraded
	default:
		st.Status = types.FeedHealthy
	}
	return st
}

// Status returns the current classification.
func (m *Monitor) Status() types.FeedStatus {
	return m.Snapshot(m.now()).Status
}

// InstrumentStatus returns the status of one instrument right now.
func (m *Monitor) InstrumentStatus(key string) types.FeedStatus {
	return m.Snapshot(m.now()).InstrumentStatus(key)
}

// Ready reports whether the feed is usable at all.
func (m *Monitor) Ready() bool {
	return m.Status() != types.FeedDown
}

// LatestPrice returns the cached last traded price. The reported time is
// the older of the venue timestamp and the local receive time.
func (m *Monitor) LatestPrice(symbol, exchange string) (float64, time.Time, bool) {
	t, ok := m.cache.Get(cache.TickKey(exchange, symbol))
	if !ok {
		return 0, time.Time{}, false
	}

	at := t.Timestamp
	m.mu.RLock()
	if inst, found := m.instruments[t.Key()]; found && inst.lastSeen.Before(at) {
		at = inst.lastSeen
	}
	m.mu.RUnlock()

	return t.Price, at, true
}

// Run reclassifies the feed on a fixed interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.Info("feed-monitor-started", zap.Duration("interval", m.checkInterval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("feed-monitor-stopped")
			return nil
		case <-ticker.C:
			m.check()
		}
	}
}

// check reclassifies, records transitions, and refreshes age gauges.
// Classification and the transition record happen under one lock so
// concurrent callers cannot reorder transitions.
func (m *Monitor) check() {
	if r, ok := m.cache.(metricsReporter); ok {
		r.ReportMetrics()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked(m.now())
	for key, age := range snap.AgeMs {
		InstrumentAgeSeconds.WithLabelValues(key).Set(float64(age) / 1000)
	}

	prev := m.status
	m.status = snap.Status
	if prev == snap.Status {
		return
	}

	setStatusGauge(snap.Status)
	TransitionsTotal.WithLabelValues(string(prev), string(snap.Status)).Inc()

	fields := []zap.Field{
		zap.String("from", string(prev)),
		zap.String("to", string(snap.Status)),
		zap.Bool("connected", snap.Connected),
		zap.Bool("exhausted", snap.Exhausted),
	}
	if snap.Status == types.FeedHealthy {
		m.logger.Info("feed-status-changed", fields...)
	} else {
		m.logger.Warn("feed-status-changed", fields...)
	}

	outcome := audit.OutcomeSuccess
	if snap.Status != types.FeedHealthy {
		outcome = audit.OutcomeFailure
	}
	m.audit.Record("feed.transition", outcome, map[string]any{
		"from":      string(prev),
		"to":        string(snap.Status),
		"connected": snap.Connected,
		"exhausted": snap.Exhausted,
	})
}

func setStatusGauge(current types.FeedStatus) {
	for _, s := range []types.FeedStatus{types.FeedHealthy, types.FeedDegraded, types.FeedDown} {
		v := 0.0
		if s == current {
			v = 1
		}
		Status.WithLabelValues(string(s)).Set(v)
	}
}
