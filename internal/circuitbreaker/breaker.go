package circuitbreaker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

// State is the reported breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"      // inside cool-down
	StateHalfOpen State = "HALF_OPEN" // cool-down elapsed, open until a success
)

// Snapshot is an immutable copy of one broker's breaker state.
type Snapshot struct {
	Broker              types.BrokerID `json:"broker"`
	State               State          `json:"state"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	Open                bool           `json:"open"`
	LastFailure         time.Time      `json:"last_failure,omitempty"`
	Cooldown            time.Duration  `json:"cooldown"`
}

type breakerState struct {
	failures    int
	lastFailure time.Time
}

// Registry holds consecutive-failure breakers keyed by broker.
// The breaker opens exactly when failures >= threshold and a single success
// resets it. Open breakers never block calls; callers use InCooldown to
// deprioritize.
type Registry struct {
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	breakers map[types.BrokerID]*breakerState
}

// Config holds breaker registry configuration.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
	Logger           *zap.Logger
	Now              func() time.Time // optional, for tests
}

// New creates a breaker registry.
func New(cfg *Config) (registry *Registry, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Registry{
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		logger:    cfg.Logger,
		now:       now,
		breakers:  make(map[types.BrokerID]*breakerState),
	}, nil
}

// RecordSuccess resets the broker's failure counter.
func (r *Registry) RecordSuccess(broker types.BrokerID) {
	r.mu.Lock()
	b := r.get(broker)
	wasOpen := b.failures >= r.threshold
	b.failures = 0
	r.mu.Unlock()

	BreakerFailures.WithLabelValues(string(broker)).Set(0)
	if wasOpen {
		BreakerOpen.WithLabelValues(string(broker)).Set(0)
		BreakerTransitionsTotal.WithLabelValues(string(broker), "closed").Inc()
		r.logger.Info("circuit-breaker-closed", zap.String("broker", string(broker)))
	}
}

// RecordFailure increments the broker's failure counter and restarts the cool-down.
func (r *Registry) RecordFailure(broker types.BrokerID) {
	r.mu.Lock()
	b := r.get(broker)
	b.failures++
	b.lastFailure = r.now()
	failures := b.failures
	opened := failures == r.threshold
	r.mu.Unlock()

	BreakerFailures.WithLabelValues(string(broker)).Set(float64(failures))
	if opened {
		BreakerOpen.WithLabelValues(string(broker)).Set(1)
		BreakerTransitionsTotal.WithLabelValues(string(broker), "open").Inc()
		r.logger.Warn("circuit-breaker-opened",
			zap.String("broker", string(broker)),
			zap.Int("consecutive-failures", failures),
			zap.Duration("cooldown", r.cooldown))
	}
}

// IsOpen reports whether the broker has reached the failure threshold.
func (r *Registry) IsOpen(broker types.BrokerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.breakers[broker]
	return ok && b.failures >= r.threshold
}

// InCooldown reports whether the broker is open and its cool-down has not elapsed.
func (r *Registry) InCooldown(broker types.BrokerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.breakers[broker]
	if !ok || b.failures < r.threshold {
		return false
	}
	return r.now().Sub(b.lastFailure) < r.cooldown
}

// Failures returns the consecutive failure count.
func (r *Registry) Failures(broker types.BrokerID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.breakers[broker]; ok {
		return b.failures
	}
	return 0
}

// Reset clears the broker's counter.
func (r *Registry) Reset(broker types.BrokerID) {
	r.mu.Lock()
	b := r.get(broker)
	b.failures = 0
	b.lastFailure = time.Time{}
	r.mu.Unlock()

	BreakerFailures.WithLabelValues(string(broker)).Set(0)
	BreakerOpen.WithLabelValues(string(broker)).Set(0)
	r.logger.Info("circuit-breaker-reset", zap.String("broker", string(broker)))
}

// Snapshot returns the state of one broker.
func (r *Registry) Snapshot(broker types.BrokerID) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked(broker)
}

// All returns snapshots for every broker seen so far, sorted by id.
func (r *Registry) All() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.breakers))
	for id := range r.breakers {
		out = append(out, r.snapshotLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Broker < out[j].Broker })
	return out
}

func (r *Registry) snapshotLocked(broker types.BrokerID) Snapshot {
	snap := Snapshot{
		Broker:   broker,
		State:    StateClosed,
		Cooldown: r.cooldown,
	}
	b, ok := r.breakers[broker]
	if !ok {
		return snap
	}

	snap.ConsecutiveFailures = b.failures
	snap.LastFailure = b.lastFailure
	if b.failures >= r.threshold {
		snap.Open = true
		snap.State = StateHalfOpen
		if r.now().Sub(b.lastFailure) < r.cooldown {
			snap.State = StateOpen
		}
	}
	return snap
}

// get must be called with the write lock held.
func (r *Registry) get(broker types.BrokerID) *breakerState {
	b, ok := r.breakers[broker]
	if !ok {
		b = &breakerState{}
		r.breakers[broker] = b
	}
	return b
}
