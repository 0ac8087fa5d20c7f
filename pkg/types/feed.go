package types

import "time"

// FeedStatus is the overall market-data trust level.
type FeedStatus string

const (
	FeedHealthy  FeedStatus = "HEALTHY"
	FeedDegraded FeedStatus = "DEGRADED"
	FeedDown     FeedStatus = "DOWN"
)

// Tick is a single last-traded-price update from the stream.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Price     float64   `json:"ltp"`
	Volume    float64   `json:"volume,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Key returns the instrument key of the tick.
func (t Tick) Key() string {
	return InstrumentKey(t.Exchange, t.Symbol)
}

// FeedState is a read-only snapshot of feed health.
type FeedState struct {
	Status       FeedStatus            `json:"status"`
	Connected    bool                  `json:"connected"`
	Exhausted    bool                  `json:"exhausted"`
	AgeMs        map[string]int64      `json:"per_symbol_age_ms"`
	LastAccepted map[string]time.Time  `json:"last_accepted"`
	Instruments  map[string]FeedStatus `json:"instruments"`
	TakenAt      time.Time             `json:"taken_at"`
}

// InstrumentStatus returns the status for one instrument. Unknown
// instruments are DEGRADED, or DOWN when the whole feed is down.
func (s FeedState) InstrumentStatus(key string) FeedStatus {
	if s.Status == FeedDown {
		return FeedDown
	}
	if st, ok := s.Instruments[key]; ok {
		return st
	}
	return FeedDegraded
}
