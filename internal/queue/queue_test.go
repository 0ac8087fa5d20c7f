package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/execution-gateway/internal/testutil"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingDispatcher struct {
	mu   sync.Mutex
	seen []types.OrderRequest
	fail func(req types.OrderRequest) error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req types.OrderRequest) error {
	d.mu.Lock()
	d.seen = append(d.seen, req)
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		return fail(req)
	}
	return nil
}

func (d *recordingDispatcher) symbols() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.seen))
	for i, r := range d.seen {
		out[i] = r.Order.Symbol
	}
	return out
}

func newTestQueue(t *testing.T, d Dispatcher) (*Queue, *fakeClock, *testutil.MockStore, *testutil.RecordingSink) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)}
	store := testutil.NewMockStore()
	sink := &testutil.RecordingSink{}

	q, err := New(&Config{
		Dispatcher: d,
		Store:      store,
		Audit:      sink,
		Logger:     zaptest.NewLogger(t),
		Now:        clock.Now,
	})
	require.NoError(t, err)
	return q, clock, store, sink
}

func request(symbol string) types.OrderRequest {
	return testutil.CreateTestRequest(testutil.CreateTestOrder(symbol, 1), nil)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Config{Logger: zaptest.NewLogger(t)})
	assert.Error(t, err)
	_, err = New(&Config{Dispatcher: &recordingDispatcher{}})
	assert.Error(t, err)
}

func TestEnqueue_UnknownLane(t *testing.T) {
	q, _, _, _ := newTestQueue(t, &recordingDispatcher{})
	_, err := q.Enqueue(request("A"), types.Lane("vip"))
	assert.Error(t, err)
}

func TestEnqueue_AssignsRequestID(t *testing.T) {
	q, _, _, _ := newTestQueue(t, &recordingDispatcher{})
	req := request("A")
	req.RequestID = ""
	item, err := q.Enqueue(req, types.LaneRegular)
	require.NoError(t, err)
	assert.NotEmpty(t, item.Request.RequestID)
}

func TestEnqueue_NeverRejects(t *testing.T) {
	q, _, _, _ := newTestQueue(t, &recordingDispatcher{})
	for i := 0; i < 5000; i++ {
		_, err := q.Enqueue(request("A"), types.LaneRegular)
		require.NoError(t, err)
	}
	assert.Equal(t, 5000, q.Status().RegularDepth)
}

func TestStep_RegularWindowLimit(t *testing.T) {
	d := &recordingDispatcher{}
	q, clock, _, _ := newTestQueue(t, d)
	for i := 0; i < 15; i++ {
		_, err := q.Enqueue(request(fmt.Sprintf("R%02d", i)), types.LaneRegular)
		require.NoError(t, err)
	}

	dispatched := 0
	for q.Step(context.Background()) {
		dispatched++
		clock.Advance(10 * time.Millisecond)
	}
	assert.Equal(t, 10, dispatched)
	assert.Equal(t, 10, q.Status().RegularWindowUsed)
	assert.Equal(t, 5, q.Status().RegularDepth)

	// Window slides: the first dispatch ages out after one second.
	clock.Advance(time.Second - 100*time.Millisecond)
	assert.True(t, q.Step(context.Background()))
	assert.False(t, q.Step(context.Background()))
}

func TestStep_SmartOnePerSecond(t *testing.T) {
	d := &recordingDispatcher{}
	q, clock, _, _ := newTestQueue(t, d)
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(request(fmt.Sprintf("S%d", i)), types.LaneSmart)
		require.NoError(t, err)
	}

	assert.True(t, q.Step(context.Background()))
	assert.False(t, q.Step(context.Background()))
	assert.Positive(t, q.Status().SmartReadyInMs)

	clock.Advance(999 * time.Millisecond)
	assert.False(t, q.Step(context.Background()))

	clock.Advance(time.Millisecond)
	assert.True(t, q.Step(context.Background()))
	assert.Equal(t, []string{"S0", "S1"}, d.symbols())
}

func TestStep_SmartFirst(t *testing.T) {
	d := &recordingDispatcher{}
	q, clock, _, _ := newTestQueue(t, d)

	_, _ = q.Enqueue(request("R0"), types.LaneRegular)
	_, _ = q.Enqueue(request("R1"), types.LaneRegular)
	_, _ = q.Enqueue(request("S0"), types.LaneSmart)
	_, _ = q.Enqueue(request("S1"), types.LaneSmart)

	for q.Step(context.Background()) {
	}
	// S1 is rate limited so regular orders proceed behind S0.
	assert.Equal(t, []string{"S0", "R0", "R1"}, d.symbols())

	clock.Advance(time.Second)
	_, _ = q.Enqueue(request("R2"), types.LaneRegular)
	require.True(t, q.Step(context.Background()))
	assert.Equal(t, "S1", d.symbols()[3])
}

func TestStep_FIFOWithinLane(t *testing.T) {
	d := &recordingDispatcher{}
	q, _, _, _ := newTestQueue(t, d)
	want := []string{"A", "B", "C", "D"}
	for _, s := range want {
		_, _ = q.Enqueue(request(s), types.LaneRegular)
	}
	for q.Step(context.Background()) {
	}
	assert.Equal(t, want, d.symbols())
}

func TestStep_DeadLetter(t *testing.T) {
	d := &recordingDispatcher{fail: func(req types.OrderRequest) error {
		if req.Order.Symbol == "BAD" {
			return errors.New("broker rejected")
		}
		return nil
	}}
	q, _, store, sink := newTestQueue(t, d)

	_, _ = q.Enqueue(request("GOOD"), types.LaneRegular)
	_, _ = q.Enqueue(request("BAD"), types.LaneSmart)
	for q.Step(context.Background()) {
	}

	dl := q.DeadLetters()
	require.Len(t, dl, 1)
	assert.Equal(t, "BAD", dl[0].Request.Order.Symbol)
	assert.Equal(t, "broker rejected", dl[0].Error)
	assert.Equal(t, types.LaneSmart, dl[0].Lane)
	assert.False(t, dl[0].Timestamp.IsZero())

	require.Len(t, store.DeadLetters, 1)
	assert.Len(t, sink.OfType("queue.dead_letter"), 1)
	assert.Equal(t, 1, q.Status().DeadLetters)

	// Never retried.
	assert.Equal(t, []string{"BAD", "GOOD"}, d.symbols())
	assert.False(t, q.Step(context.Background()))
}

func TestStep_DispatcherPanicDeadLettered(t *testing.T) {
	d := &recordingDispatcher{fail: func(types.OrderRequest) error { panic("boom") }}
	q, _, _, _ := newTestQueue(t, d)
	_, _ = q.Enqueue(request("A"), types.LaneRegular)

	assert.NotPanics(t, func() { q.Step(context.Background()) })
	dl := q.DeadLetters()
	require.Len(t, dl, 1)
	assert.Contains(t, dl[0].Error, "boom")
}

func TestStep_StoreFailureKeepsInMemory(t *testing.T) {
	d := &recordingDispatcher{fail: func(types.OrderRequest) error { return errors.New("nope") }}
	q, _, store, _ := newTestQueue(t, d)
	store.SaveErr = errors.New("db down")

	_, _ = q.Enqueue(request("A"), types.LaneRegular)
	q.Step(context.Background())
	assert.Len(t, q.DeadLetters(), 1)
}

// In any one-second window no more than the lane limits are dispatched.
func TestRun_RespectsLimits(t *testing.T) {
	d := &recordingDispatcher{}
	q, err := New(&Config{
		Dispatcher:   d,
		Logger:       zaptest.NewLogger(t),
		IdleInterval: time.Millisecond,
	})
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, _ = q.Enqueue(request(fmt.Sprintf("R%d", i)), types.LaneRegular)
	}
	for i := 0; i < 3; i++ {
		_, _ = q.Enqueue(request(fmt.Sprintf("S%d", i)), types.LaneSmart)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	q.Run(ctx)

	st := q.Status()
	assert.Equal(t, uint64(11), st.Dispatched, "10 regular + 1 smart in under a second")
	assert.Equal(t, 15, st.RegularDepth)
	assert.Equal(t, 2, st.SmartDepth)
}
