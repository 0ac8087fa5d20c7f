// Package binance adapts the Binance USD-M futures API to the broker
// contract.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Config holds Binance credentials.
type Config struct {
	ID         types.BrokerID
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // overrides the production/testnet URL when set
	Logger     *zap.Logger
}

// Adapter implements broker.Adapter on top of go-binance futures.
type Adapter struct {
	id     types.BrokerID
	client *futures.Client
	logger *zap.Logger

	mu        sync.RWMutex
	connected bool
	lastOK    time.Time
}

// New creates an unconnected Binance adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn("binance-credentials-missing", zap.String("hint", "only public endpoints will work"))
	}
	id := cfg.ID
	if id == "" {
		id = "binance"
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}

	return &Adapter{id: id, client: client, logger: cfg.Logger}, nil
}

// ID implements broker.Adapter.
func (a *Adapter) ID() types.BrokerID { return a.id }

// Connect pings the exchange.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.client.NewPingService().Do(ctx); err != nil {
		return a.remote("connect", err)
	}
	a.mu.Lock()
	a.connected = true
	a.lastOK = time.Now()
	a.mu.Unlock()

	a.logger.Info("binance-connected",
		zap.String("broker", string(a.id)),
		zap.String("base-url", a.client.BaseURL))
	return nil
}

// Disconnect marks the adapter as disconnected.
func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	return nil
}

// GetLastPrice returns the latest symbol price.
func (a *Adapter) GetLastPrice(ctx context.Context, symbol, _ string) (float64, error) {
	if err := a.ensureConnected("get_last_price"); err != nil {
		return 0, err
	}
	prices, err := a.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, a.remote("get_last_price", err)
	}
	if len(prices) == 0 {
		return 0, types.NewRemoteError(a.id, "get_last_price", types.RemoteNoData, fmt.Errorf("no price for %s", symbol))
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil || price <= 0 {
		return 0, types.NewRemoteError(a.id, "get_last_price", types.RemoteNoData,
			fmt.Errorf("could not parse price %q", prices[0].Price))
	}
	a.touch()
	return price, nil
}

// GetHistoricalCandles returns klines between from and to.
func (a *Adapter) GetHistoricalCandles(ctx context.Context, symbol, _, interval string, from, to time.Time) ([]types.Candle, error) {
	if err := a.ensureConnected("get_historical_candles"); err != nil {
		return nil, err
	}
	if interval == "" {
		interval = "1d"
	}

	klines, err := a.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(from.UnixMilli()).
		EndTime(to.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, a.remote("get_historical_candles", err)
	}

	out := make([]types.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := translateKline(k)
		if err != nil {
			return nil, types.NewRemoteError(a.id, "get_historical_candles", types.RemoteNoData, err)
		}
		out = append(out, c)
	}
	a.touch()
	return out, nil
}

// GetPositions returns non-zero futures positions.
func (a *Adapter) GetPositions(ctx context.Context) ([]types.Position, error) {
	if err := a.ensureConnected("get_positions"); err != nil {
		return nil, err
	}
	risks, err := a.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, a.remote("get_positions", err)
	}

	out := make([]types.Position, 0, len(risks))
	for _, r := range risks {
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if qty == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		unrealized, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		out = append(out, types.Position{
			Symbol:        r.Symbol,
			Exchange:      "BINANCE",
			Quantity:      qty,
			AvgPrice:      entry,
			UnrealizedPnL: unrealized,
			Product:       "FUTURES",
		})
	}
	a.touch()
	return out, nil
}

// PlaceOrder submits the order. The returned id is "SYMBOL:orderID" since
// order lookups on Binance need both.
func (a *Adapter) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	if err := a.ensureConnected("place_order"); err != nil {
		return "", err
	}

	side := futures.SideTypeBuy
	if order.Side == types.SideSell {
		side = futures.SideTypeSell
	}

	svc := a.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Quantity(strconv.FormatInt(order.Quantity, 10))
	if order.Type == types.OrderTypeLimit {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(timeInForce(order.TimeInForce)).
			Price(strconv.FormatFloat(order.LimitPrice, 'f', -1, 64))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return "", a.remote("place_order", err)
	}
	a.touch()
	return fmt.Sprintf("%s:%d", resp.Symbol, resp.OrderID), nil
}

// GetOrderStatus looks up an order id produced by PlaceOrder.
func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	if err := a.ensureConnected("get_order_status"); err != nil {
		return types.OrderStatus{}, err
	}
	symbol, id, err := splitOrderID(orderID)
	if err != nil {
		return types.OrderStatus{}, types.NewRemoteError(a.id, "get_order_status", types.RemoteRejected, err)
	}

	o, err := a.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return types.OrderStatus{}, a.remote("get_order_status", err)
	}
	filled, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	a.touch()
	return types.OrderStatus{
		OrderID:   orderID,
		Status:    string(o.Status),
		FilledQty: filled,
		AvgPrice:  avg,
	}, nil
}

// Health pings the exchange.
func (a *Adapter) Health(ctx context.Context) types.BrokerHealth {
	h := types.BrokerHealth{Broker: a.id, Status: types.HealthHealthy, CheckedAt: time.Now()}

	a.mu.RLock()
	connected := a.connected
	h.LastSuccess = a.lastOK
	a.mu.RUnlock()

	if !connected {
		h.Status = types.HealthUnhealthy
		h.Message = "not connected"
		return h
	}
	if err := a.client.NewPingService().Do(ctx); err != nil {
		h.Status = types.HealthUnhealthy
		h.Message = err.Error()
	}
	return h
}

func (a *Adapter) ensureConnected(op string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return types.NewRemoteError(a.id, op, types.RemoteUnavailable, fmt.Errorf("not connected"))
	}
	return nil
}

func (a *Adapter) touch() {
	a.mu.Lock()
	a.lastOK = time.Now()
	a.mu.Unlock()
}

// remote maps Binance API codes onto remote failure kinds.
func (a *Adapter) remote(op string, err error) error {
	return types.NewRemoteError(a.id, op, classify(err), err)
}

func classify(err error) types.RemoteKind {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return types.RemoteUnavailable
	}
	switch apiErr.Code {
	case -1003:
		return types.RemoteRateLimited
	case -1021:
		return types.RemoteTimeout
	case -1022, -2014, -2015:
		return types.RemoteAuth
	case -2010, -2019, -2022, -4003, -4014:
		return types.RemoteRejected
	default:
		if apiErr.Code <= -1100 && apiErr.Code >= -1199 {
			return types.RemoteRejected
		}
		return types.RemoteUnavailable
	}
}

func translateKline(k *futures.Kline) (types.Candle, error) {
	if k == nil {
		return types.Candle{}, errors.New("received nil kline")
	}
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var vals [5]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return types.Candle{}, fmt.Errorf("parsing kline value %q: %w", f, err)
		}
		vals[i] = v
	}
	return types.Candle{
		Time:   time.UnixMilli(k.OpenTime),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func splitOrderID(orderID string) (string, int64, error) {
	symbol, raw, ok := strings.Cut(orderID, ":")
	if !ok || symbol == "" {
		return "", 0, fmt.Errorf("malformed order id %q", orderID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed order id %q: %w", orderID, err)
	}
	return symbol, id, nil
}

func timeInForce(tif string) futures.TimeInForceType {
	switch strings.ToUpper(tif) {
	case "IOC":
		return futures.TimeInForceTypeIOC
	case "FOK":
		return futures.TimeInForceTypeFOK
	default:
		return futures.TimeInForceTypeGTC
	}
}
