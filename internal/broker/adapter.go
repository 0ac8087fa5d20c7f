// Package broker defines the capability contract every venue integration
// satisfies. The gateway depends only on this interface.
package broker

import (
	"context"
	"time"

	"github.com/mselser95/execution-gateway/pkg/types"
)

// Adapter is implemented by each broker integration. Expected remote
// failures are returned as *types.RemoteError so they match types.ErrUnavailable.
type Adapter interface {
	// ID returns the broker identity.
	ID() types.BrokerID

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	GetLastPrice(ctx context.Context, symbol, exchange string) (float64, error)
	GetHistoricalCandles(ctx context.Context, symbol, exchange, interval string, from, to time.Time) ([]types.Candle, error)
	GetPositions(ctx context.Context) ([]types.Position, error)
	PlaceOrder(ctx context.Context, order types.Order) (string, error)
	GetOrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)

	// Health probes the venue and never returns an error; problems are
	// reported through the status and message.
	Health(ctx context.Context) types.BrokerHealth
}
