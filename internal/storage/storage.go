// Package storage persists execution records and dead letters.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mselser95/execution-gateway/pkg/types"
)

// Store is the interface for persisting gate outcomes and dead letters.
type Store interface {
	// SaveExecution stores one execution record. Records are write-once.
	SaveExecution(ctx context.Context, rec *types.ExecutionRecord) error

	// SaveDeadLetter stores a failed dispatch attempt.
	SaveDeadLetter(ctx context.Context, entry *types.DeadLetterEntry) error

	// Close closes the storage connection.
	Close() error
}

// executionArgs flattens a record into column order shared by the SQL stores:
// id, request_id, symbol, exchange, side, quantity, price, mode, feed_state,
// status, block_reason, block_detail, broker, broker_order_id, drift_bps,
// decision_id, error, created_at.
func executionArgs(rec *types.ExecutionRecord) []any {
	var reason, broker sql.NullString
	if rec.BlockReason != nil {
		reason = sql.NullString{String: string(*rec.BlockReason), Valid: true}
	}
	if rec.Broker != nil {
		broker = sql.NullString{String: string(*rec.Broker), Valid: true}
	}

	return []any{
		rec.ID,
		rec.RequestID,
		rec.Symbol,
		rec.Exchange,
		string(rec.Side),
		rec.Quantity,
		rec.Price,
		string(rec.Mode),
		string(rec.FeedState),
		string(rec.Status),
		reason,
		rec.BlockDetail,
		broker,
		nullString(rec.BrokerOrderID),
		nullFloat(rec.DriftBps),
		nullString(rec.DecisionID),
		rec.Error,
		rec.CreatedAt.UTC(),
	}
}

// deadLetterArgs returns request_id, lane, request (JSON), error, failed_at.
func deadLetterArgs(entry *types.DeadLetterEntry) ([]any, error) {
	payload, err := json.Marshal(entry.Request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return []any{
		entry.Request.RequestID,
		string(entry.Lane),
		string(payload),
		entry.Error,
		entry.Timestamp.UTC(),
	}, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
