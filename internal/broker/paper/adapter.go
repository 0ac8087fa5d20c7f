// Package paper is a simulated venue that fills every order at the latest
// streamed price. It never talks to the network.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/execution-gateway/pkg/types"
)

// PriceSource supplies the latest traded price for an instrument.
type PriceSource interface {
	LatestPrice(symbol, exchange string) (price float64, at time.Time, ok bool)
}

// Adapter fills orders in memory and tracks net positions.
type Adapter struct {
	id     types.BrokerID
	prices PriceSource

	mu        sync.Mutex
	connected bool
	orders    map[string]types.OrderStatus
	positions map[string]*types.Position
	lastOK    time.Time
}

// New creates a paper adapter.
func New(id types.BrokerID, prices PriceSource) *Adapter {
	return &Adapter{
		id:        id,
		prices:    prices,
		orders:    make(map[string]types.OrderStatus),
		positions: make(map[string]*types.Position),
	}
}

// ID implements broker.Adapter.
func (a *Adapter) ID() types.BrokerID { return a.id }

// Connect implements broker.Adapter.
func (a *Adapter) Connect(_ context.Context) error {
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()
	return nil
}

// Disconnect implements broker.Adapter.
func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	return nil
}

// GetLastPrice returns the latest streamed price.
func (a *Adapter) GetLastPrice(ctx context.Context, symbol, exchange string) (float64, error) {
	if err := a.ready(ctx, "get_last_price"); err != nil {
		return 0, err
	}
	price, _, ok := a.prices.LatestPrice(symbol, exchange)
	if !ok {
		return 0, types.NewRemoteError(a.id, "get_last_price", types.RemoteNoData,
			fmt.Errorf("no price for %s", types.InstrumentKey(exchange, symbol)))
	}
	a.touch()
	return price, nil
}

// GetHistoricalCandles is not supported by the simulator.
func (a *Adapter) GetHistoricalCandles(_ context.Context, symbol, exchange, _ string, _, _ time.Time) ([]types.Candle, error) {
	return nil, types.NewRemoteError(a.id, "get_historical_candles", types.RemoteNoData,
		fmt.Errorf("paper venue keeps no history for %s", types.InstrumentKey(exchange, symbol)))
}

// GetPositions returns simulated net positions.
func (a *Adapter) GetPositions(ctx context.Context) ([]types.Position, error) {
	if err := a.ready(ctx, "get_positions"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]types.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	a.lastOK = time.Now()
	return out, nil
}

// PlaceOrder fills the order immediately at the limit price or the latest price.
func (a *Adapter) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	if err := a.ready(ctx, "place_order"); err != nil {
		return "", err
	}

	fill := order.LimitPrice
	if order.Type == types.OrderTypeMarket {
		price, _, ok := a.prices.LatestPrice(order.Symbol, order.Exchange)
		if !ok {
			return "", types.NewRemoteError(a.id, "place_order", types.RemoteRejected,
				fmt.Errorf("no price to fill %s", order.Key()))
		}
		fill = price
	}

	id := "paper-" + uuid.NewString()
	signed := float64(order.Quantity)
	if order.Side == types.SideSell {
		signed = -signed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.orders[id] = types.OrderStatus{
		OrderID:   id,
		Status:    "FILLED",
		FilledQty: float64(order.Quantity),
		AvgPrice:  fill,
	}

	pos, ok := a.positions[order.Key()]
	if !ok {
		pos = &types.Position{Symbol: order.Symbol, Exchange: order.Exchange, Product: order.Product}
		a.positions[order.Key()] = pos
	}
	applyFill(pos, signed, fill)
	a.lastOK = time.Now()

	return id, nil
}

// GetOrderStatus returns a previously placed simulated order.
func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	if err := a.ready(ctx, "get_order_status"); err != nil {
		return types.OrderStatus{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.orders[orderID]
	if !ok {
		return types.OrderStatus{}, types.NewRemoteError(a.id, "get_order_status", types.RemoteNoData,
			fmt.Errorf("order %s not found", orderID))
	}
	return st, nil
}

// Health reports HEALTHY while connected.
func (a *Adapter) Health(_ context.Context) types.BrokerHealth {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := types.BrokerHealth{
		Broker:      a.id,
		Status:      types.HealthHealthy,
		LastSuccess: a.lastOK,
		Message:     "paper venue",
		CheckedAt:   time.Now(),
	}
	if !a.connected {
		h.Status = types.HealthUnhealthy
		h.Message = "not connected"
	}
	return h
}

func (a *Adapter) ready(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return types.NewRemoteError(a.id, op, types.RemoteTimeout, err)
	}
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return types.NewRemoteError(a.id, op, types.RemoteUnavailable, fmt.Errorf("not connected"))
	}
	return nil
}

func (a *Adapter) touch() {
	a.mu.Lock()
	a.lastOK = time.Now()
	a.mu.Unlock()
}

// applyFill updates net quantity, average price, and realized P&L.
func applyFill(pos *types.Position, qty, price float64) {
	switch {
	case pos.Quantity == 0 || sameSign(pos.Quantity, qty):
		total := pos.Quantity + qty
		pos.AvgPrice = (pos.AvgPrice*abs(pos.Quantity) + price*abs(qty)) / abs(total)
		pos.Quantity = total
	default:
		closing := minF(abs(qty), abs(pos.Quantity))
		direction := 1.0
		if pos.Quantity < 0 {
			direction = -1.0
		}
		pos.RealizedPnL += (price - pos.AvgPrice) * closing * direction
		pos.Quantity += qty
		if pos.Quantity == 0 {
			pos.AvgPrice = 0
		} else if !sameSign(pos.Quantity, direction) {
			pos.AvgPrice = price
		}
	}
}

func sameSign(a, b float64) bool { return (a > 0) == (b > 0) }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
