package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

const consoleRule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Store by pretty-printing to the console.
type ConsoleStorage struct {
	logger *zap.Logger
	out    io.Writer
	mu     sync.Mutex
}

// NewConsoleStorage creates a console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	return NewConsoleStorageTo(logger, os.Stdout)
}

// NewConsoleStorageTo creates a console storage writing to out.
func NewConsoleStorageTo(logger *zap.Logger, out io.Writer) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
		out:    out,
	}
}

// SaveExecution pretty-prints an execution record.
func (c *ConsoleStorage) SaveExecution(ctx context.Context, rec *types.ExecutionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, "\n"+consoleRule)
	fmt.Fprintf(c.out, "EXECUTION %s  [%s / %s]\n", rec.Status, rec.Mode, rec.FeedState)
	fmt.Fprintln(c.out, consoleRule)
	fmt.Fprintf(c.out, "ID:       %s\n", rec.ID)
	fmt.Fprintf(c.out, "Order:    %s %d %s @ %.4f\n", rec.Side, rec.Quantity, types.InstrumentKey(rec.Exchange, rec.Symbol), rec.Price)
	fmt.Fprintf(c.out, "Time:     %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05.000"))
	if rec.DecisionID != nil {
		fmt.Fprintf(c.out, "Decision: %s\n", *rec.DecisionID)
	}
	if rec.DriftBps != nil {
		fmt.Fprintf(c.out, "Drift:    %.2f bps\n", *rec.DriftBps)
	}
	if rec.BlockReason != nil {
		fmt.Fprintf(c.out, "Blocked:  %s %s\n", *rec.BlockReason, rec.BlockDetail)
	}
	if rec.Broker != nil && rec.BrokerOrderID != nil {
		fmt.Fprintf(c.out, "Broker:   %s order %s\n", *rec.Broker, *rec.BrokerOrderID)
	}
	if rec.Error != "" {
		fmt.Fprintf(c.out, "Error:    %s\n", rec.Error)
	}
	fmt.Fprintln(c.out, consoleRule)

	return nil
}

// SaveDeadLetter pretty-prints a dead-letter entry.
func (c *ConsoleStorage) SaveDeadLetter(ctx context.Context, entry *types.DeadLetterEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := entry.Request.Order
	fmt.Fprintln(c.out, "\n"+consoleRule)
	fmt.Fprintf(c.out, "DEAD LETTER  [%s lane]\n", entry.Lane)
	fmt.Fprintf(c.out, "Request:  %s\n", entry.Request.RequestID)
	fmt.Fprintf(c.out, "Order:    %s %d %s\n", o.Side, o.Quantity, o.Key())
	fmt.Fprintf(c.out, "Error:    %s\n", entry.Error)
	fmt.Fprintln(c.out, consoleRule)

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
