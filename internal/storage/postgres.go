package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS execution_records (
	id              TEXT PRIMARY KEY,
	request_id      TEXT NOT NULL DEFAULT '',
	symbol          TEXT NOT NULL,
	exchange        TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        BIGINT NOT NULL,
	price           DOUBLE PRECISION NOT NULL,
	mode            TEXT NOT NULL,
	feed_state      TEXT NOT NULL,
	status          TEXT NOT NULL,
	block_reason    TEXT,
	block_detail    TEXT NOT NULL DEFAULT '',
	broker          TEXT,
	broker_order_id TEXT,
	drift_bps       DOUBLE PRECISION,
	decision_id     TEXT,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS dead_letters (
	id         BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL,
	lane       TEXT NOT NULL,
	request    JSONB NOT NULL,
	error      TEXT NOT NULL,
	failed_at  TIMESTAMPTZ NOT NULL
);`

// PostgresStorage implements Store using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects and ensures the schema exists.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresStorage{db: db, logger: cfg.Logger}
	err = p.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// Migrate creates the tables if they are missing.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, postgresSchema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// SaveExecution inserts one execution record.
func (p *PostgresStorage) SaveExecution(ctx context.Context, rec *types.ExecutionRecord) error {
	query := `
		INSERT INTO execution_records (
			id, request_id, symbol, exchange, side, quantity, price, mode,
			feed_state, status, block_reason, block_detail, broker,
			broker_order_id, drift_bps, decision_id, error, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := p.db.ExecContext(ctx, query, executionArgs(rec)...)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}

	p.logger.Debug("execution-record-stored",
		zap.String("record-id", rec.ID),
		zap.String("symbol", rec.Symbol),
		zap.String("status", string(rec.Status)))

	return nil
}

// SaveDeadLetter inserts one dead-letter entry.
func (p *PostgresStorage) SaveDeadLetter(ctx context.Context, entry *types.DeadLetterEntry) error {
	args, err := deadLetterArgs(entry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dead_letters (request_id, lane, request, error, failed_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}

	p.logger.Debug("dead-letter-stored",
		zap.String("request-id", entry.Request.RequestID),
		zap.String("lane", string(entry.Lane)))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
