package types

import "time"

// HealthStatus is a broker health classification.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
	HealthUnknown   HealthStatus = "UNKNOWN"
)

// BrokerHealth is recomputed on every probe.
type BrokerHealth struct {
	Broker      BrokerID     `json:"broker"`
	Status      HealthStatus `json:"status"`
	ErrorRate   float64      `json:"error_rate"`
	LastSuccess time.Time    `json:"last_success,omitempty"`
	Message     string       `json:"message,omitempty"`
	CheckedAt   time.Time    `json:"checked_at"`
}

// Position mirrors a venue-owned position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	Quantity      float64 `json:"quantity"` // signed
	AvgPrice      float64 `json:"avg_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Product       string  `json:"product,omitempty"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// OrderStatus is a venue's view of a placed order.
type OrderStatus struct {
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`
	FilledQty float64 `json:"filled_qty"`
	AvgPrice  float64 `json:"avg_price"`
}

// PlaceResult is the outcome of a successful order placement.
type PlaceResult struct {
	Broker        BrokerID `json:"broker"`
	BrokerOrderID string   `json:"broker_order_id"`
}

// Quote is a single broker's last price.
type Quote struct {
	Broker    BrokerID  `json:"broker"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ConsensusQuote is the median of concurrently collected quotes.
type ConsensusQuote struct {
	Symbol     string     `json:"symbol"`
	Exchange   string     `json:"exchange"`
	Price      float64    `json:"price"`
	Quotes     []Quote    `json:"quotes"`
	Outliers   []BrokerID `json:"outliers"`
	Confidence float64    `json:"confidence"`
}
