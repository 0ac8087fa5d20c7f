// Package alpaca adapts the Alpaca trading and market-data APIs to the
// broker contract.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds Alpaca credentials and endpoints.
type Config struct {
	ID        types.BrokerID
	APIKey    string
	APISecret string
	BaseURL   string // trading API, e.g. https://paper-api.alpaca.markets
	DataURL   string // market data API, e.g. https://data.alpaca.markets
	Logger    *zap.Logger
}

// Adapter implements broker.Adapter on top of the Alpaca SDK.
type Adapter struct {
	id     types.BrokerID
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	trading *alpaca.Client
	data    *marketdata.Client
	lastOK  time.Time
}

// New creates an unconnected Alpaca adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("alpaca api key and secret are required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	id := cfg.ID
	if id == "" {
		id = "alpaca"
	}
	return &Adapter{id: id, cfg: cfg, logger: cfg.Logger}, nil
}

// ID implements broker.Adapter.
func (a *Adapter) ID() types.BrokerID { return a.id }

// Connect builds the SDK clients and verifies the account.
func (a *Adapter) Connect(ctx context.Context) error {
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    a.cfg.APIKey,
		APISecret: a.cfg.APISecret,
		BaseURL:   a.cfg.BaseURL,
	})
	data := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    a.cfg.APIKey,
		APISecret: a.cfg.APISecret,
		BaseURL:   a.cfg.DataURL,
	})

	account, err := call(ctx, func() (*alpaca.Account, error) { return trading.GetAccount() })
	if err != nil {
		return a.remote("connect", err)
	}

	a.mu.Lock()
	a.trading = trading
	a.data = data
	a.lastOK = time.Now()
	a.mu.Unlock()

	a.logger.Info("alpaca-connected",
		zap.String("broker", string(a.id)),
		zap.String("account-status", string(account.Status)))
	return nil
}

// Disconnect drops the SDK clients.
func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	a.trading = nil
	a.data = nil
	a.mu.Unlock()
	return nil
}

// GetLastPrice returns the latest trade price.
func (a *Adapter) GetLastPrice(ctx context.Context, symbol, _ string) (float64, error) {
	_, data, err := a.clients("get_last_price")
	if err != nil {
		return 0, err
	}
	trade, err := call(ctx, func() (*marketdata.Trade, error) {
		return data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	})
	if err != nil {
		return 0, a.remote("get_last_price", err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, types.NewRemoteError(a.id, "get_last_price", types.RemoteNoData, fmt.Errorf("no trade for %s", symbol))
	}
	a.touch()
	return trade.Price, nil
}

// GetHistoricalCandles returns bars for the requested interval (1m, 1h, 1d).
func (a *Adapter) GetHistoricalCandles(ctx context.Context, symbol, _, interval string, from, to time.Time) ([]types.Candle, error) {
	_, data, err := a.clients("get_historical_candles")
	if err != nil {
		return nil, err
	}
	tf, err := timeFrame(interval)
	if err != nil {
		return nil, types.NewRemoteError(a.id, "get_historical_candles", types.RemoteRejected, err)
	}

	bars, err := call(ctx, func() ([]marketdata.Bar, error) {
		return data.GetBars(symbol, marketdata.GetBarsRequest{TimeFrame: tf, Start: from, End: to})
	})
	if err != nil {
		return nil, a.remote("get_historical_candles", err)
	}

	out := make([]types.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, types.Candle{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	a.touch()
	return out, nil
}

// GetPositions returns open positions.
func (a *Adapter) GetPositions(ctx context.Context) ([]types.Position, error) {
	trading, _, err := a.clients("get_positions")
	if err != nil {
		return nil, err
	}
	positions, err := call(ctx, func() ([]alpaca.Position, error) { return trading.GetPositions() })
	if err != nil {
		return nil, a.remote("get_positions", err)
	}

	out := make([]types.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, types.Position{
			Symbol:   p.Symbol,
			Exchange: p.Exchange,
			Quantity: p.Qty.InexactFloat64(),
			AvgPrice: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	a.touch()
	return out, nil
}

// PlaceOrder submits the order and returns Alpaca's order id.
func (a *Adapter) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	trading, _, err := a.clients("place_order")
	if err != nil {
		return "", err
	}

	qty := decimal.NewFromInt(order.Quantity)
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        alpaca.Buy,
		Type:        alpaca.Market,
		TimeInForce: timeInForce(order.TimeInForce),
	}
	if order.Side == types.SideSell {
		req.Side = alpaca.Sell
	}
	if order.Type == types.OrderTypeLimit {
		limit := decimal.NewFromFloat(order.LimitPrice)
		req.Type = alpaca.Limit
		req.LimitPrice = &limit
	}

	placed, err := call(ctx, func() (*alpaca.Order, error) { return trading.PlaceOrder(req) })
	if err != nil {
		return "", a.remote("place_order", err)
	}
	a.touch()
	return placed.ID, nil
}

// GetOrderStatus returns the order's current status.
func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	trading, _, err := a.clients("get_order_status")
	if err != nil {
		return types.OrderStatus{}, err
	}
	o, err := call(ctx, func() (*alpaca.Order, error) { return trading.GetOrder(orderID) })
	if err != nil {
		return types.OrderStatus{}, a.remote("get_order_status", err)
	}

	st := types.OrderStatus{
		OrderID:   o.ID,
		Status:    strings.ToUpper(string(o.Status)),
		FilledQty: o.FilledQty.InexactFloat64(),
	}
	if o.FilledAvgPrice != nil {
		st.AvgPrice = o.FilledAvgPrice.InexactFloat64()
	}
	a.touch()
	return st, nil
}

// Health probes the account endpoint.
func (a *Adapter) Health(ctx context.Context) types.BrokerHealth {
	h := types.BrokerHealth{Broker: a.id, Status: types.HealthHealthy, CheckedAt: time.Now()}

	trading, _, err := a.clients("health")
	if err != nil {
		h.Status = types.HealthUnhealthy
		h.Message = "not connected"
		return h
	}
	account, err := call(ctx, func() (*alpaca.Account, error) { return trading.GetAccount() })
	if err != nil {
		h.Status = types.HealthUnhealthy
		h.Message = err.Error()
	} else if account.TradingBlocked {
		h.Status = types.HealthDegraded
		h.Message = "trading blocked on account"
	}

	a.mu.RLock()
	h.LastSuccess = a.lastOK
	a.mu.RUnlock()
	return h
}

func (a *Adapter) clients(op string) (*alpaca.Client, *marketdata.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.trading == nil || a.data == nil {
		return nil, nil, types.NewRemoteError(a.id, op, types.RemoteUnavailable, fmt.Errorf("not connected"))
	}
	return a.trading, a.data, nil
}

func (a *Adapter) touch() {
	a.mu.Lock()
	a.lastOK = time.Now()
	a.mu.Unlock()
}

// remote classifies SDK errors into remote failure kinds.
func (a *Adapter) remote(op string, err error) error {
	kind := types.RemoteUnavailable
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			kind = types.RemoteRateLimited
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			kind = types.RemoteAuth
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			kind = types.RemoteRejected
		}
	}
	return types.NewRemoteError(a.id, op, kind, err)
}

// call runs a context-less SDK call and abandons it when ctx ends.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func timeFrame(interval string) (marketdata.TimeFrame, error) {
	switch interval {
	case "1m", "minute":
		return marketdata.OneMin, nil
	case "1h", "hour":
		return marketdata.OneHour, nil
	case "1d", "day", "":
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported interval %q", interval)
	}
}

func timeInForce(tif string) alpaca.TimeInForce {
	switch strings.ToUpper(tif) {
	case "IOC":
		return alpaca.IOC
	case "GTC":
		return alpaca.GTC
	default:
		return alpaca.Day
	}
}
