package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/execution-gateway/internal/testutil"
	"github.com/mselser95/execution-gateway/pkg/cache"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mapCache is a synchronous cache so reads observe writes immediately.
type mapCache struct {
	mu    sync.Mutex
	items map[string]types.Tick
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]types.Tick)}
}

func (c *mapCache) Get(key string) (types.Tick, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(key string, v types.Tick, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = v
	return true
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *mapCache) Close() {}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	monitor *Monitor
	cache   *mapCache
	clock   *clock
	sink    *testutil.RecordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		cache: newMapCache(),
		clock: &clock{now: time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)},
		sink:  &testutil.RecordingSink{},
	}
	m, err := New(&Config{
		Cache:  f.cache,
		Audit:  f.sink,
		Logger: zaptest.NewLogger(t),
		Now:    f.clock.Now,
	})
	require.NoError(t, err)
	f.monitor = m
	return f
}

func (f *fixture) tick(symbol string, price float64, ts time.Time) types.Tick {
	return types.Tick{Symbol: symbol, Exchange: "NSE", Price: price, Timestamp: ts}
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Logger: logger})
	assert.Error(t, err)

	_, err = New(&Config{Cache: newMapCache()})
	assert.Error(t, err)

	m, err := New(&Config{Cache: newMapCache(), Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, types.FeedDown, m.Status())
	assert.False(t, m.Ready())
}

func TestOnTick_Validation(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	tests := []struct {
		name string
		tick types.Tick
		want bool
	}{
		{"valid", f.tick("INFY", 1500, now), true},
		{"empty symbol", f.tick("", 1500, now), false},
		{"empty exchange", types.Tick{Symbol: "INFY", Price: 1500, Timestamp: now}, false},
		{"zero price", f.tick("TCS", 0, now), false},
		{"negative price", f.tick("TCS", -1, now), false},
		{"zero timestamp", f.tick("TCS", 10, time.Time{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.monitor.OnTick(tt.tick))
		})
	}
}

func TestOnTick_Monotonic(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock.Now()

	require.True(t, f.monitor.OnTick(f.tick("INFY", 1500, t0)))
	assert.False(t, f.monitor.OnTick(f.tick("INFY", 1400, t0.Add(-time.Second))), "older tick must be discarded")
	assert.True(t, f.monitor.OnTick(f.tick("INFY", 1501, t0)), "equal timestamp is not older")
	assert.True(t, f.monitor.OnTick(f.tick("INFY", 1502, t0.Add(time.Second))))

	price, _, ok := f.monitor.LatestPrice("INFY", "NSE")
	require.True(t, ok)
	assert.InDelta(t, 1502, price, 1e-9)

	// Monotonicity is per instrument.
	assert.True(t, f.monitor.OnTick(f.tick("TCS", 3500, t0.Add(-time.Minute))))
}

func TestSnapshot_Classification(t *testing.T) {
	f := newFixture(t)
	m := f.monitor

	m.Track("NSE:INFY", "NSE:TCS")
	assert.Equal(t, types.FeedDown, m.Status(), "disconnected feed is DOWN")

	m.SetConnected(true)
	snap := m.Snapshot(f.clock.Now())
	assert.Equal(t, types.FeedDegraded, snap.Status, "never-ticked instrument degrades the feed")
	assert.Equal(t, types.FeedDegraded, snap.Instruments["NSE:TCS"])

	m.OnTick(f.tick("INFY", 1500, f.clock.Now()))
	m.OnTick(f.tick("TCS", 3500, f.clock.Now()))
	snap = m.Snapshot(f.clock.Now())
	assert.Equal(t, types.FeedHealthy, snap.Status)
	assert.Equal(t, types.FeedHealthy, snap.InstrumentStatus("NSE:INFY"))
	assert.Equal(t, types.FeedDegraded, snap.InstrumentStatus("NSE:UNKNOWN"))

	f.clock.Advance(10 * time.Second)
	m.OnTick(f.tick("INFY", 1501, f.clock.Now()))
	f.clock.Advance(6 * time.Second)

	snap = m.Snapshot(f.clock.Now())
	assert.Equal(t, types.FeedDegraded, snap.Status, "TCS is 16s old")
	assert.Equal(t, types.FeedHealthy, snap.Instruments["NSE:INFY"])
	assert.Equal(t, types.FeedDegraded, snap.Instruments["NSE:TCS"])
	assert.Equal(t, int64(16000), snap.AgeMs["NSE:TCS"])
	assert.Equal(t, int64(6000), snap.AgeMs["NSE:INFY"])

	m.SetExhausted(true)
	snap = m.Snapshot(f.clock.Now())
	assert.Equal(t, types.FeedDown, snap.Status)
	assert.Equal(t, types.FeedDown, snap.InstrumentStatus("NSE:INFY"))
	assert.True(t, snap.Exhausted)
}

func TestSnapshot_StaleNeverHealthy(t *testing.T) {
	f := newFixture(t)
	m := f.monitor
	m.Track("NSE:INFY")
	m.SetConnected(true)
	m.OnTick(f.tick("INFY", 1500, f.clock.Now()))

	f.clock.Advance(DefaultStaleAfter)
	assert.Equal(t, types.FeedHealthy, m.Status(), "exactly at the threshold is not older")

	f.clock.Advance(time.Millisecond)
	assert.NotEqual(t, types.FeedHealthy, m.Status())
}

func TestSnapshot_Untrack(t *testing.T) {
	f := newFixture(t)
	m := f.monitor
	m.SetConnected(true)
	m.Track("NSE:INFY")
	assert.Equal(t, types.FeedDegraded, m.Status())

	m.Untrack("NSE:INFY")
	assert.Equal(t, types.FeedHealthy, m.Status())
	assert.True(t, m.Ready())
}

func TestTransitions_Audited(t *testing.T) {
	f := newFixture(t)
	m := f.monitor

	m.SetConnected(true)
	m.SetConnected(true)
	m.SetConnected(false)

	events := f.sink.OfType("feed.transition")
	require.Len(t, events, 2)
	assert.Equal(t, "DOWN", events[0].Metadata["from"])
	assert.Equal(t, "HEALTHY", events[0].Metadata["to"])
	assert.Equal(t, "DOWN", events[1].Metadata["to"])
}

func TestTransitions_ConsistentUnderConcurrentChecks(t *testing.T) {
	f := newFixture(t)
	m := f.monitor

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.SetConnected((i+j)%2 == 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.SetExhausted(j%7 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Track("NSE:INFY")
				m.Untrack("NSE:INFY")
			}
		}()
	}
	wg.Wait()

	// Every recorded transition starts where the previous one ended and
	// the last one matches the current status.
	events := f.sink.OfType("feed.transition")
	prev := string(types.FeedDown)
	for _, ev := range events {
		assert.Equal(t, prev, ev.Metadata["from"])
		assert.NotEqual(t, ev.Metadata["from"], ev.Metadata["to"])
		prev, _ = ev.Metadata["to"].(string)
	}

	m.SetExhausted(false)
	m.SetConnected(true)
	assert.Equal(t, types.FeedHealthy, m.Status())
	events = f.sink.OfType("feed.transition")
	if len(events) > 0 {
		assert.Equal(t, "HEALTHY", events[len(events)-1].Metadata["to"])
	}
}

func TestRun_DetectsStalenessWithoutTicks(t *testing.T) {
	f := newFixture(t)
	m, err := New(&Config{
		Cache:         f.cache,
		Audit:         f.sink,
		Logger:        zaptest.NewLogger(t),
		Now:           f.clock.Now,
		CheckInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	m.Track("NSE:INFY")
	m.SetConnected(true)
	m.OnTick(f.tick("INFY", 1500, f.clock.Now()))
	m.check()
	require.Len(t, f.sink.OfType("feed.transition"), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	f.clock.Advance(20 * time.Second)
	require.Eventually(t, func() bool {
		return len(f.sink.OfType("feed.transition")) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	last := f.sink.OfType("feed.transition")[2]
	assert.Equal(t, "DEGRADED", last.Metadata["to"])
}

func TestSubscribe_PublishesAndCancels(t *testing.T) {
	f := newFixture(t)
	m := f.monitor

	ch, cancel := m.Subscribe("NSE:INFY")
	other, cancelOther := m.Subscribe("NSE:TCS")
	defer cancelOther()

	m.OnTick(f.tick("INFY", 1500, f.clock.Now()))

	select {
	case got := <-ch:
		assert.InDelta(t, 1500, got.Price, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("expected tick on subscriber channel")
	}
	assert.Empty(t, other)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	assert.True(t, m.OnTick(f.tick("INFY", 1501, f.clock.Now())))
}

func TestSubscribe_FullChannelDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	m, err := New(&Config{Cache: f.cache, Logger: zaptest.NewLogger(t), Now: f.clock.Now, SubscriberBuffer: 1})
	require.NoError(t, err)

	ch, cancel := m.Subscribe("NSE:INFY")
	defer cancel()

	for i := 0; i < 5; i++ {
		assert.True(t, m.OnTick(f.tick("INFY", float64(1500+i), f.clock.Now())))
	}
	assert.Len(t, ch, 1)
}

func TestLatestPrice(t *testing.T) {
	f := newFixture(t)
	m := f.monitor

	_, _, ok := m.LatestPrice("INFY", "NSE")
	assert.False(t, ok)

	venueTs := f.clock.Now().Add(2 * time.Second)
	m.OnTick(f.tick("INFY", 1500, venueTs))

	price, at, ok := m.LatestPrice("INFY", "NSE")
	require.True(t, ok)
	assert.InDelta(t, 1500, price, 1e-9)
	assert.Equal(t, f.clock.Now(), at, "receive time wins when the venue clock runs ahead")

	_, ok = f.cache.Get(cache.TickKey("NSE", "INFY"))
	assert.True(t, ok)
}

func TestLatestPrice_Ristretto(t *testing.T) {
	rc, err := cache.NewRistretto[types.Tick](&cache.RistrettoConfig{
		Name:   "ticks-test",
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer rc.Close()

	m, err := New(&Config{Cache: rc, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	now := time.Now()
	require.True(t, m.OnTick(types.Tick{Symbol: "INFY", Exchange: "NSE", Price: 1500, Timestamp: now}))
	rc.Wait()

	price, at, ok := m.LatestPrice("INFY", "NSE")
	require.True(t, ok)
	assert.InDelta(t, 1500, price, 1e-9)
	assert.False(t, at.After(now))
}
