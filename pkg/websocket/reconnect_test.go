package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedRand(v float64) func() float64 {
	return func() float64 { return v }
}

func TestBackoff_ExponentialWithJitter(t *testing.T) {
	b := NewBackoff(BackoffConfig{Rand: fixedRand(0.5)})

	want := []time.Duration{
		1500 * time.Millisecond,
		2500 * time.Millisecond,
		4500 * time.Millisecond,
		8500 * time.Millisecond,
		16500 * time.Millisecond,
	}
	for i, w := range want {
		got, exhausted := b.Next()
		assert.False(t, exhausted, "attempt %d", i)
		assert.Equal(t, w, got, "attempt %d", i)
	}
	assert.Equal(t, 5, b.Failures())
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	b := NewBackoff(BackoffConfig{Rand: fixedRand(0.9), MaxFailures: 100})

	var last time.Duration
	for i := 0; i < 10; i++ {
		last, _ = b.Next()
	}
	assert.Equal(t, 60*time.Second, last)
}

func TestBackoff_ExhaustsAfterMaxFailures(t *testing.T) {
	b := NewBackoff(BackoffConfig{Rand: fixedRand(0)})

	for i := 0; i < 5; i++ {
		_, exhausted := b.Next()
		assert.False(t, exhausted)
	}

	wait, exhausted := b.Next()
	assert.True(t, exhausted)
	assert.Equal(t, 5*time.Minute, wait)

	// A fresh round starts after the cool-down.
	wait, exhausted = b.Next()
	assert.False(t, exhausted)
	assert.Equal(t, time.Second, wait)
}

func TestBackoff_ResetClearsCounters(t *testing.T) {
	b := NewBackoff(BackoffConfig{Rand: fixedRand(0)})
	b.Next()
	b.Next()
	b.Next()

	b.Reset()

	assert.Equal(t, 0, b.Failures())
	wait, _ := b.Next()
	assert.Equal(t, time.Second, wait)
}
