package app

import (
	"strings"

	"github.com/mselser95/execution-gateway/internal/queue"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/mselser95/execution-gateway/pkg/websocket"
	"go.uber.org/zap"
)

// normalizeKeys upper-cases EXCHANGE:SYMBOL keys and drops malformed or
// duplicate entries.
func normalizeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, raw := range keys {
		exchange, symbol, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok || exchange == "" || symbol == "" {
			continue
		}
		key := types.InstrumentKey(exchange, symbol)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

// intake streams an order's instrument before queueing it, so the gate
// has a live price by the time the order is dispatched.
type intake struct {
	queue  *queue.Queue
	stream *websocket.Client
	logger *zap.Logger
}

func (i *intake) Enqueue(req types.OrderRequest, lane types.Lane) (types.QueuedOrder, error) {
	if req.Order.Symbol != "" && req.Order.Exchange != "" {
		err := i.stream.Subscribe(req.Order.Key())
		if err != nil {
			i.logger.Warn("instrument-subscribe-failed",
				zap.String("instrument", req.Order.Key()),
				zap.Error(err))
		}
	}
	return i.queue.Enqueue(req, lane)
}

func (i *intake) Status() queue.Status {
	return i.queue.Status()
}

func (i *intake) DeadLetters() []types.DeadLetterEntry {
	return i.queue.DeadLetters()
}
