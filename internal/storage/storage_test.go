package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mselser95/execution-gateway/internal/testutil"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func blockedRecord() *types.ExecutionRecord {
	reason := types.BlockExcessiveDrift
	drift := 12.5
	decision := "dec-1"
	return &types.ExecutionRecord{
		ID:          "rec-1",
		RequestID:   "req-1",
		Symbol:      "INFY",
		Exchange:    "NSE",
		Side:        types.SideBuy,
		Quantity:    10,
		Price:       1500.25,
		Mode:        types.ModeLive,
		FeedState:   types.FeedHealthy,
		Status:      types.StatusBlocked,
		BlockReason: &reason,
		BlockDetail: "drift 12.50 bps exceeds 10.00",
		DriftBps:    &drift,
		DecisionID:  &decision,
		CreatedAt:   time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
	}
}

func liveRecord() *types.ExecutionRecord {
	broker := types.BrokerID("paper")
	orderID := "paper-1"
	return &types.ExecutionRecord{
		ID:            "rec-2",
		Symbol:        "TCS",
		Exchange:      "NSE",
		Side:          types.SideSell,
		Quantity:      5,
		Price:         3500,
		Mode:          types.ModeLive,
		FeedState:     types.FeedHealthy,
		Status:        types.StatusLive,
		Broker:        &broker,
		BrokerOrderID: &orderID,
		CreatedAt:     time.Date(2026, 3, 2, 9, 16, 0, 0, time.UTC),
	}
}

func deadLetter() *types.DeadLetterEntry {
	req := testutil.CreateTestRequest(testutil.CreateTestOrder("INFY", 10), nil)
	req.RequestID = "req-dead"
	return &types.DeadLetterEntry{
		Request:   req,
		Error:     "dispatch: all brokers failed",
		Lane:      types.LaneSmart,
		Timestamp: time.Date(2026, 3, 2, 9, 17, 0, 0, time.UTC),
	}
}

func TestConsoleStorage_SaveExecution(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleStorageTo(zaptest.NewLogger(t), &buf)

	require.NoError(t, s.SaveExecution(context.Background(), blockedRecord()))

	out := buf.String()
	assert.Contains(t, out, "EXECUTION BLOCKED")
	assert.Contains(t, out, "NSE:INFY")
	assert.Contains(t, out, "EXCESSIVE_DRIFT")
	assert.Contains(t, out, "12.50 bps")

	buf.Reset()
	require.NoError(t, s.SaveExecution(context.Background(), liveRecord()))
	assert.Contains(t, buf.String(), "paper order paper-1")
}

func TestConsoleStorage_SaveDeadLetter(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleStorageTo(zaptest.NewLogger(t), &buf)

	require.NoError(t, s.SaveDeadLetter(context.Background(), deadLetter()))
	assert.Contains(t, buf.String(), "DEAD LETTER  [smart lane]")
	assert.Contains(t, buf.String(), "req-dead")
	assert.NoError(t, s.Close())
}

func TestPostgresStorage_SaveExecution(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}
	rec := blockedRecord()

	mock.ExpectExec("INSERT INTO execution_records").
		WithArgs(
			"rec-1", "req-1", "INFY", "NSE", "BUY", int64(10), 1500.25, "LIVE",
			"HEALTHY", "BLOCKED", "EXCESSIVE_DRIFT", rec.BlockDetail, nil,
			nil, 12.5, "dec-1", "", rec.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveExecution(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveExecution_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectExec("INSERT INTO execution_records").
		WillReturnError(errors.New("connection reset"))

	err = s.SaveExecution(context.Background(), liveRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert execution record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveDeadLetter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}
	entry := deadLetter()

	mock.ExpectExec("INSERT INTO dead_letters").
		WithArgs("req-dead", "smart", sqlmock.AnyArg(), entry.Error, entry.Timestamp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveDeadLetter(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_MigrateAndClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	s := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS execution_records").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStorage_Validation(t *testing.T) {
	_, err := NewPostgresStorage(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewPostgresStorage(context.Background(), &PostgresConfig{})
	assert.Error(t, err)
}

func TestSQLiteStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStorage(ctx, &SQLiteConfig{
		Path:   filepath.Join(t.TempDir(), "records.db"),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveExecution(ctx, blockedRecord()))
	require.NoError(t, s.SaveExecution(ctx, liveRecord()))
	require.NoError(t, s.SaveDeadLetter(ctx, deadLetter()))

	total, err := s.CountExecutions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	blocked, err := s.CountExecutions(ctx, types.StatusBlocked)
	require.NoError(t, err)
	assert.Equal(t, 1, blocked)

	// Records are write-once.
	err = s.SaveExecution(ctx, blockedRecord())
	assert.Error(t, err)
}

func TestNewSQLiteStorage_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewSQLiteStorage(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewSQLiteStorage(context.Background(), &SQLiteConfig{Logger: logger})
	assert.Error(t, err)

	_, err = NewSQLiteStorage(context.Background(), &SQLiteConfig{Path: ":memory:"})
	assert.Error(t, err)
}
