// Package cache provides the short-lived key-value store that holds the
// latest accepted tick per instrument.
package cache

import (
	"time"

	"github.com/mselser95/execution-gateway/pkg/types"
)

// Cache is a TTL key-value store for values of type V.
type Cache[V any] interface {
	// Get returns the value and true, or the zero value and false.
	Get(key string) (V, bool)

	// Set stores a value with a TTL. Admission is best effort.
	Set(key string, value V, ttl time.Duration) bool

	Delete(key string)
	Close()
}

// TickKey is the cache key for an instrument's latest tick.
func TickKey(exchange, symbol string) string {
	return "tick:" + types.InstrumentKey(exchange, symbol)
}
