package gateway

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutlierThreshold is the relative deviation from the median above which a
// quote is flagged.
const OutlierThreshold = 0.005

// GetConsensusPrice queries every broker concurrently and returns the median
// of the successful quotes. Each call is bounded by the per-call timeout.
func (g *Gateway) GetConsensusPrice(ctx context.Context, symbol, exchange string) (types.ConsensusQuote, error) {
	entries := g.sorted()
	if len(entries) == 0 {
		return types.ConsensusQuote{}, fmt.Errorf("%w: %w", types.ErrUnavailable, types.ErrNoBrokers)
	}

	results := make([]*types.Quote, len(entries))
	var eg errgroup.Group
	for i, e := range entries {
		eg.Go(func() error {
			price, err := invoke(ctx, g, e, "get_consensus_price", lastPrice(symbol, exchange, "get_consensus_price"))
			if err != nil {
				return nil
			}
			results[i] = &types.Quote{Broker: e.id, Price: price, FetchedAt: g.now()}
			return nil
		})
	}
	_ = eg.Wait()

	quotes := make([]types.Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	if len(quotes) == 0 {
		return types.ConsensusQuote{}, fmt.Errorf("%w: no broker returned a price for %s", types.ErrUnavailable, types.InstrumentKey(exchange, symbol))
	}

	prices := make([]float64, len(quotes))
	for i, q := range quotes {
		prices[i] = q.Price
	}
	mid := median(prices)

	outliers := make([]types.BrokerID, 0)
	for _, q := range quotes {
		if isOutlier(q.Price, mid) {
			outliers = append(outliers, q.Broker)
			ConsensusOutliersTotal.WithLabelValues(string(q.Broker)).Inc()
		}
	}

	cq := types.ConsensusQuote{
		Symbol:     symbol,
		Exchange:   exchange,
		Price:      mid,
		Quotes:     quotes,
		Outliers:   outliers,
		Confidence: float64(len(quotes)) / float64(len(entries)),
	}
	ConsensusConfidence.WithLabelValues(types.InstrumentKey(exchange, symbol)).Set(cq.Confidence)

	if len(outliers) > 0 {
		g.logger.Warn("consensus-outliers",
			zap.String("symbol", symbol),
			zap.Float64("median", mid),
			zap.Int("outliers", len(outliers)))
	}
	return cq, nil
}

// median returns the middle value, or the mean of the two middle values.
func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func isOutlier(price, mid float64) bool {
	if mid <= 0 {
		return false
	}
	return math.Abs(price-mid)/mid > OutlierThreshold
}
