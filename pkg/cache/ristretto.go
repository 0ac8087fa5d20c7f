package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Ristretto is a Cache backed by dgraph-io/ristretto.
type Ristretto[V any] struct {
	name   string
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for a Ristretto cache.
type RistrettoConfig struct {
	Name        string // metrics label
	NumCounters int64  // keys tracked for admission, ~10x max items
	MaxCost     int64  // max items (each entry costs 1)
	BufferItems int64
	Logger      *zap.Logger
}

// NewRistretto creates a Ristretto-backed cache.
func NewRistretto[V any](cfg *RistrettoConfig) (*Ristretto[V], error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	numCounters, maxCost, buffer := cfg.NumCounters, cfg.MaxCost, cfg.BufferItems
	if numCounters <= 0 {
		numCounters = 100_000
	}
	if maxCost <= 0 {
		maxCost = 10_000
	}
	if buffer <= 0 {
		buffer = 64
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            maxCost,
		BufferItems:        buffer,
		Metrics:            true,
		IgnoreInternalCost: true, // MaxCost counts items, not bytes
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &Ristretto[V]{name: name, cache: c, logger: cfg.Logger}, nil
}

// Get implements Cache.
func (r *Ristretto[V]) Get(key string) (V, bool) {
	var zero V
	raw, found := r.cache.Get(key)
	if !found {
		MissesTotal.WithLabelValues(r.name).Inc()
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		MissesTotal.WithLabelValues(r.name).Inc()
		r.logger.Warn("cache-type-mismatch", zap.String("cache", r.name), zap.String("key", key))
		return zero, false
	}
	HitsTotal.WithLabelValues(r.name).Inc()
	return v, true
}

// Set implements Cache. Each entry costs 1.
func (r *Ristretto[V]) Set(key string, value V, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if ok {
		SetsTotal.WithLabelValues(r.name).Inc()
	} else {
		RejectedTotal.WithLabelValues(r.name).Inc()
		r.logger.Debug("cache-set-rejected", zap.String("cache", r.name), zap.String("key", key))
	}
	return ok
}

// Delete implements Cache.
func (r *Ristretto[V]) Delete(key string) {
	r.cache.Del(key)
}

// Close implements Cache.
func (r *Ristretto[V]) Close() {
	r.cache.Close()
	r.logger.Info("cache-closed", zap.String("cache", r.name))
}

// Wait blocks until pending writes are applied.
func (r *Ristretto[V]) Wait() {
	r.cache.Wait()
}

// ReportMetrics copies ristretto's internal counters into the gauges.
func (r *Ristretto[V]) ReportMetrics() {
	m := r.cache.Metrics
	if m == nil {
		return
	}
	KeysEvicted.WithLabelValues(r.name).Set(float64(m.KeysEvicted()))
	HitRatio.WithLabelValues(r.name).Set(m.Ratio())
}

// Metrics returns Ristretto's internal counters.
func (r *Ristretto[V]) Metrics() *ristretto.Metrics {
	return r.cache.Metrics
}
