package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/execution-gateway/pkg/types"
)

// MockAdapter is a scriptable broker.Adapter. Nil funcs fall back to
// simple defaults: a fixed price, empty positions and sequential order ids.
type MockAdapter struct {
	BrokerID types.BrokerID
	Price    float64

	LastPriceFunc  func(ctx context.Context, symbol, exchange string) (float64, error)
	PlaceOrderFunc func(ctx context.Context, order types.Order) (string, error)
	PositionsFunc  func(ctx context.Context) ([]types.Position, error)
	HealthFunc     func(ctx context.Context) types.BrokerHealth

	mu     sync.Mutex
	calls  map[string]int
	orders []types.Order
}

// NewMockAdapter creates a mock broker quoting price.
func NewMockAdapter(id types.BrokerID, price float64) *MockAdapter {
	return &MockAdapter{BrokerID: id, Price: price, calls: make(map[string]int)}
}

// Unavailable returns a remote "unavailable" error for this broker.
func (m *MockAdapter) Unavailable(op string) error {
	return types.NewRemoteError(m.BrokerID, op, types.RemoteUnavailable, fmt.Errorf("mock unavailable"))
}

func (m *MockAdapter) ID() types.BrokerID { return m.BrokerID }

func (m *MockAdapter) Connect(_ context.Context) error {
	m.count("connect")
	return nil
}

func (m *MockAdapter) Disconnect(_ context.Context) error {
	m.count("disconnect")
	return nil
}

func (m *MockAdapter) GetLastPrice(ctx context.Context, symbol, exchange string) (float64, error) {
	m.count("get_last_price")
	if m.LastPriceFunc != nil {
		return m.LastPriceFunc(ctx, symbol, exchange)
	}
	return m.Price, nil
}

func (m *MockAdapter) GetHistoricalCandles(_ context.Context, _, _, _ string, from, _ time.Time) ([]types.Candle, error) {
	m.count("get_historical_candles")
	return []types.Candle{{Time: from, Open: m.Price, High: m.Price, Low: m.Price, Close: m.Price}}, nil
}

func (m *MockAdapter) GetPositions(ctx context.Context) ([]types.Position, error) {
	m.count("get_positions")
	if m.PositionsFunc != nil {
		return m.PositionsFunc(ctx)
	}
	return []types.Position{}, nil
}

func (m *MockAdapter) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	n := m.count("place_order")
	m.mu.Lock()
	m.orders = append(m.orders, order)
	m.mu.Unlock()

	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(ctx, order)
	}
	return fmt.Sprintf("%s-%d", m.BrokerID, n), nil
}

func (m *MockAdapter) GetOrderStatus(_ context.Context, orderID string) (types.OrderStatus, error) {
	m.count("get_order_status")
	return types.OrderStatus{OrderID: orderID, Status: "FILLED"}, nil
}

func (m *MockAdapter) Health(ctx context.Context) types.BrokerHealth {
	m.count("health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return types.BrokerHealth{Broker: m.BrokerID, Status: types.HealthHealthy, CheckedAt: time.Now()}
}

// Calls returns how many times op was invoked.
func (m *MockAdapter) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Orders returns a copy of every order passed to PlaceOrder.
func (m *MockAdapter) Orders() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Order(nil), m.orders...)
}

func (m *MockAdapter) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
	return m.calls[op]
}

// RecordedEvent is one event captured by RecordingSink.
type RecordedEvent struct {
	Type     string
	Outcome  string
	Metadata map[string]any
}

// RecordingSink is an audit.Sink that keeps every event in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// Record implements audit.Sink.
func (s *RecordingSink) Record(eventType, outcome string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, RecordedEvent{Type: eventType, Outcome: outcome, Metadata: metadata})
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []RecordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedEvent(nil), s.events...)
}

// OfType returns the recorded events with the given type.
func (s *RecordingSink) OfType(eventType string) []RecordedEvent {
	var out []RecordedEvent
	for _, ev := range s.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// MockStore is an in-memory storage.Store.
type MockStore struct {
	mu          sync.Mutex
	Executions  []*types.ExecutionRecord
	DeadLetters []*types.DeadLetterEntry
	SaveErr     error
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (s *MockStore) SaveExecution(_ context.Context, rec *types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Executions = append(s.Executions, rec)
	return nil
}

func (s *MockStore) SaveDeadLetter(_ context.Context, entry *types.DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.DeadLetters = append(s.DeadLetters, entry)
	return nil
}

func (s *MockStore) Close() error { return nil }

// ExecutionCount returns the number of stored execution records.
func (s *MockStore) ExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Executions)
}

// LastExecution returns the most recent record, or nil.
func (s *MockStore) LastExecution() *types.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Executions) == 0 {
		return nil
	}
	return s.Executions[len(s.Executions)-1]
}
