package types

import (
	"fmt"
	"strings"
	"time"
)

// BrokerID identifies an integrated venue. It is used as a map key everywhere.
type BrokerID string

// BrokerAuto asks the gateway to pick a broker by priority and health.
const BrokerAuto = "auto"

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is MARKET or LIMIT.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Lane is the Order Queue priority lane.
type Lane string

const (
	LaneRegular Lane = "regular"
	LaneSmart   Lane = "smart" // position-closing/flattening orders
)

// Order is an immutable order value. Corrections produce a new Order.
type Order struct {
	Symbol      string    `json:"symbol"`
	Exchange    string    `json:"exchange"`
	Side        Side      `json:"side"`
	Quantity    int64     `json:"quantity"`
	Type        OrderType `json:"order_type"`
	LimitPrice  float64   `json:"limit_price,omitempty"` // zero when unset
	Product     string    `json:"product,omitempty"`
	TimeInForce string    `json:"time_in_force,omitempty"`
}

// Validate checks the order is well formed.
func (o Order) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidOrder, o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, o.Quantity)
	}
	switch o.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit order requires a positive limit price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: order type must be MARKET or LIMIT, got %q", ErrInvalidOrder, o.Type)
	}
	return nil
}

// WithQuantity returns a copy of the order with a new quantity.
func (o Order) WithQuantity(qty int64) Order {
	o.Quantity = qty
	return o
}

// Key returns the instrument key for the order.
func (o Order) Key() string {
	return InstrumentKey(o.Exchange, o.Symbol)
}

// InstrumentKey builds the canonical EXCHANGE:SYMBOL key.
func InstrumentKey(exchange, symbol string) string {
	return strings.ToUpper(exchange) + ":" + strings.ToUpper(symbol)
}

// TradeDecision is the upstream signal that authorized an order.
type TradeDecision struct {
	ID          string    `json:"decision_id"`
	Symbol      string    `json:"symbol"`
	DecisionLTP float64   `json:"decision_ltp"`
	ValidTill   time.Time `json:"valid_till"`
}

// OrderRequest is the normalized payload delivered by upstream intake.
type OrderRequest struct {
	RequestID  string         `json:"request_id,omitempty"`
	Order      Order          `json:"order"`
	BrokerHint string         `json:"broker_hint,omitempty"`
	Decision   *TradeDecision `json:"decision,omitempty"`
}

// QueuedOrder lives only while it sits in a queue lane.
type QueuedOrder struct {
	Request    OrderRequest
	Lane       Lane
	EnqueuedAt time.Time
}

// DeadLetterEntry records a dispatch attempt that failed. It is never replayed.
type DeadLetterEntry struct {
	Request   OrderRequest `json:"request"`
	Error     string       `json:"error"`
	Lane      Lane         `json:"lane"`
	Timestamp time.Time    `json:"timestamp"`
}
