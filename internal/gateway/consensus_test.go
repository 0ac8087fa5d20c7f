package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/execution-gateway/internal/testutil"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConsensusPrice(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewMockAdapter("A", 100.0)
	b := testutil.NewMockAdapter("B", 100.2)
	c := testutil.NewMockAdapter("C", 101.0)
	d := testutil.NewMockAdapter("D", 0)
	failingPrice(d)
	for i, m := range []*testutil.MockAdapter{a, b, c, d} {
		require.NoError(t, f.gw.Register(m.BrokerID, m, i))
	}

	cq, err := f.gw.GetConsensusPrice(context.Background(), "INFY", "NSE")
	require.NoError(t, err)

	assert.InDelta(t, 100.2, cq.Price, 1e-9)
	assert.Len(t, cq.Quotes, 3)
	assert.Equal(t, []types.BrokerID{"C"}, cq.Outliers)
	assert.InDelta(t, 0.75, cq.Confidence, 1e-9)
	assert.Equal(t, 1, f.reg.Failures("D"))
}

func TestGetConsensusPrice_ZeroPriceCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	good := testutil.NewMockAdapter("A", 100)
	zero := testutil.NewMockAdapter("Z", 0)
	require.NoError(t, f.gw.Register("A", good, 1))
	require.NoError(t, f.gw.Register("Z", zero, 2))

	for i := 0; i < 3; i++ {
		f.reg.RecordFailure("Z")
	}
	require.True(t, f.reg.IsOpen("Z"))

	cq, err := f.gw.GetConsensusPrice(context.Background(), "INFY", "NSE")
	require.NoError(t, err)

	assert.Len(t, cq.Quotes, 1)
	assert.Equal(t, 4, f.reg.Failures("Z"))
	assert.True(t, f.reg.IsOpen("Z"))
}

func TestGetConsensusPrice_EvenCount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gw.Register("A", testutil.NewMockAdapter("A", 100), 1))
	require.NoError(t, f.gw.Register("B", testutil.NewMockAdapter("B", 100.4), 2))

	cq, err := f.gw.GetConsensusPrice(context.Background(), "INFY", "NSE")
	require.NoError(t, err)
	assert.InDelta(t, 100.2, cq.Price, 1e-9)
	assert.Empty(t, cq.Outliers)
	assert.InDelta(t, 1.0, cq.Confidence, 1e-9)
}

func TestGetConsensusPrice_SlowBrokerBounded(t *testing.T) {
	f := newFixture(t)
	f.gw.callTimeout = 30 * time.Millisecond

	slow := testutil.NewMockAdapter("slow", 0)
	slow.LastPriceFunc = func(ctx context.Context, _, _ string) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	require.NoError(t, f.gw.Register("fast", testutil.NewMockAdapter("fast", 10), 1))
	require.NoError(t, f.gw.Register("slow", slow, 2))

	start := time.Now()
	cq, err := f.gw.GetConsensusPrice(context.Background(), "INFY", "NSE")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 10.0, cq.Price)
	assert.InDelta(t, 0.5, cq.Confidence, 1e-9)
}

func TestGetConsensusPrice_NoQuotes(t *testing.T) {
	f := newFixture(t)
	a := testutil.NewMockAdapter("A", 0)
	failingPrice(a)
	require.NoError(t, f.gw.Register("A", a, 1))

	_, err := f.gw.GetConsensusPrice(context.Background(), "INFY", "NSE")
	assert.ErrorIs(t, err, types.ErrUnavailable)

	empty := newFixture(t)
	_, err = empty.gw.GetConsensusPrice(context.Background(), "INFY", "NSE")
	assert.ErrorIs(t, err, types.ErrNoBrokers)
}

func TestMedianAndOutlier(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))

	assert.False(t, isOutlier(100.5, 100), "exactly 0.5% is not an outlier")
	assert.True(t, isOutlier(100.51, 100))
	assert.True(t, isOutlier(99.4, 100))
	assert.False(t, isOutlier(1, 0))
}
