package websocket

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffConfig holds reconnection backoff settings.
type BackoffConfig struct {
	Unit        time.Duration // scale of 2^attempt, 1s in production
	MaxDelay    time.Duration
	MaxFailures int           // consecutive failures before the feed is exhausted
	Cooldown    time.Duration // extra wait once exhausted
	Rand        func() float64
}

// DefaultBackoffConfig returns min(2^attempt + rand[0,1), 60s) with a
// five-minute cool-down after more than five consecutive failures.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Unit:        time.Second,
		MaxDelay:    60 * time.Second,
		MaxFailures: 5,
		Cooldown:    5 * time.Minute,
	}
}

// Backoff tracks consecutive connection failures.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	attempt  int
	failures int
}

// NewBackoff creates a backoff with defaults filled in.
func NewBackoff(cfg BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Unit <= 0 {
		cfg.Unit = def.Unit
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Backoff{cfg: cfg}
}

// Next records a failure and returns how long to wait before the next
// attempt. Once failures exceed MaxFailures it reports exhausted and
// returns the cool-down; the counters then start over.
func (b *Backoff) Next() (wait time.Duration, exhausted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures > b.cfg.MaxFailures {
		b.failures = 0
		b.attempt = 0
		return b.cfg.Cooldown, true
	}

	units := math.Pow(2, float64(b.attempt)) + b.cfg.Rand()
	b.attempt++

	wait = time.Duration(units * float64(b.cfg.Unit))
	if wait > b.cfg.MaxDelay || wait <= 0 {
		wait = b.cfg.MaxDelay
	}
	return wait, false
}

// Reset clears the counters after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
	b.failures = 0
}

// Failures returns the consecutive failure count.
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
