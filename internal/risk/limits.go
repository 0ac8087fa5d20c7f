// Package risk is the default account risk collaborator for the gate.
package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds account-level limits. Zero limits are disabled.
type Config struct {
	MaxQuantity int64
	MaxNotional float64
	Blocklist   []string // symbols that may never be traded
	Logger      *zap.Logger
}

// Limits checks orders against static account limits.
type Limits struct {
	maxQuantity int64
	maxNotional decimal.Decimal
	blocked     map[string]bool
	logger      *zap.Logger
}

// New creates a Limits checker.
func New(cfg *Config) (*Limits, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MaxQuantity < 0 || cfg.MaxNotional < 0 {
		return nil, fmt.Errorf("limits cannot be negative")
	}

	blocked := make(map[string]bool, len(cfg.Blocklist))
	for _, s := range cfg.Blocklist {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			blocked[s] = true
		}
	}

	return &Limits{
		maxQuantity: cfg.MaxQuantity,
		maxNotional: decimal.NewFromFloat(cfg.MaxNotional),
		blocked:     blocked,
		logger:      cfg.Logger,
	}, nil
}

// CheckRisk reports whether an order of qty at price is within limits.
func (l *Limits) CheckRisk(ctx context.Context, symbol string, qty int64, price float64) (types.RiskResult, error) {
	if err := ctx.Err(); err != nil {
		return types.RiskResult{}, err
	}

	if l.blocked[strings.ToUpper(symbol)] {
		return l.deny(symbol, fmt.Sprintf("symbol %s is blocklisted", symbol)), nil
	}

	if l.maxQuantity > 0 && qty > l.maxQuantity {
		return l.deny(symbol, fmt.Sprintf("quantity %d exceeds account limit %d", qty, l.maxQuantity)), nil
	}

	if l.maxNotional.IsPositive() && price > 0 {
		notional := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty))
		if notional.GreaterThan(l.maxNotional) {
			return l.deny(symbol, fmt.Sprintf("notional %s exceeds account limit %s",
				notional.StringFixed(2), l.maxNotional.StringFixed(2))), nil
		}
	}

	return types.RiskResult{Allowed: true}, nil
}

func (l *Limits) deny(symbol, reason string) types.RiskResult {
	l.logger.Debug("risk-check-denied",
		zap.String("symbol", symbol),
		zap.String("reason", reason))
	return types.RiskResult{Allowed: false, Reason: reason}
}
