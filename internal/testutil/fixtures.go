package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/execution-gateway/pkg/types"
)

// CreateTestOrder creates a valid market buy order.
func CreateTestOrder(symbol string, qty int64) types.Order {
	return types.Order{
		Symbol:      symbol,
		Exchange:    "NSE",
		Side:        types.SideBuy,
		Quantity:    qty,
		Type:        types.OrderTypeMarket,
		Product:     "MIS",
		TimeInForce: "DAY",
	}
}

// CreateTestDecision creates a decision valid for ttl from now.
func CreateTestDecision(symbol string, ltp float64, now time.Time, ttl time.Duration) *types.TradeDecision {
	return &types.TradeDecision{
		ID:          "dec-" + uuid.NewString()[:8],
		Symbol:      symbol,
		DecisionLTP: ltp,
		ValidTill:   now.Add(ttl),
	}
}

// CreateTestRequest wraps an order into a request with the auto broker hint.
func CreateTestRequest(order types.Order, decision *types.TradeDecision) types.OrderRequest {
	return types.OrderRequest{
		RequestID:  uuid.NewString(),
		Order:      order,
		BrokerHint: types.BrokerAuto,
		Decision:   decision,
	}
}

// CreateTestTick creates a tick for NSE:symbol.
func CreateTestTick(symbol string, price float64, ts time.Time) types.Tick {
	return types.Tick{Symbol: symbol, Exchange: "NSE", Price: price, Volume: 1, Timestamp: ts}
}
