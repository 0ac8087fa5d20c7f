package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS execution_records (
	id              TEXT PRIMARY KEY,
	request_id      TEXT NOT NULL DEFAULT '',
	symbol          TEXT NOT NULL,
	exchange        TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	price           REAL NOT NULL,
	mode            TEXT NOT NULL,
	feed_state      TEXT NOT NULL,
	status          TEXT NOT NULL,
	block_reason    TEXT,
	block_detail    TEXT NOT NULL DEFAULT '',
	broker          TEXT,
	broker_order_id TEXT,
	drift_bps       REAL,
	decision_id     TEXT,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS dead_letters (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	lane       TEXT NOT NULL,
	request    TEXT NOT NULL,
	error      TEXT NOT NULL,
	failed_at  TIMESTAMP NOT NULL
);`

// SQLiteStorage implements Store on a local SQLite file.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// SQLiteConfig holds SQLite configuration.
type SQLiteConfig struct {
	Path   string // file path or ":memory:"
	Logger *zap.Logger
}

// NewSQLiteStorage opens the database and ensures the schema exists.
func NewSQLiteStorage(ctx context.Context, cfg *SQLiteConfig) (*SQLiteStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	cfg.Logger.Info("sqlite-storage-opened", zap.String("path", cfg.Path))

	return &SQLiteStorage{db: db, logger: cfg.Logger}, nil
}

// SaveExecution inserts one execution record.
func (s *SQLiteStorage) SaveExecution(ctx context.Context, rec *types.ExecutionRecord) error {
	query := `
		INSERT INTO execution_records (
			id, request_id, symbol, exchange, side, quantity, price, mode,
			feed_state, status, block_reason, block_detail, broker,
			broker_order_id, drift_bps, decision_id, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, executionArgs(rec)...)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}

	s.logger.Debug("execution-record-stored",
		zap.String("record-id", rec.ID),
		zap.String("status", string(rec.Status)))

	return nil
}

// SaveDeadLetter inserts one dead-letter entry.
func (s *SQLiteStorage) SaveDeadLetter(ctx context.Context, entry *types.DeadLetterEntry) error {
	args, err := deadLetterArgs(entry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dead_letters (request_id, lane, request, error, failed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// CountExecutions returns the number of stored records with the given status,
// or all records when status is empty.
func (s *SQLiteStorage) CountExecutions(ctx context.Context, status types.ExecutionStatus) (int, error) {
	query := `SELECT COUNT(*) FROM execution_records`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}

	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count execution records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	s.logger.Info("closing-sqlite-storage")
	return s.db.Close()
}
