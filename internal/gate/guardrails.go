package gate

import (
	"fmt"

	"github.com/mselser95/execution-gateway/pkg/types"
)

// Guardrail is a hard limit evaluated just before live dispatch. Check must
// depend only on its arguments.
type Guardrail interface {
	Name() string
	Check(order types.Order, price float64) error
}

// MaxQuantity caps the quantity of a single order.
type MaxQuantity struct {
	Limit int64
}

func (MaxQuantity) Name() string { return "max_quantity" }

func (g MaxQuantity) Check(order types.Order, _ float64) error {
	if g.Limit > 0 && order.Quantity > g.Limit {
		return fmt.Errorf("quantity %d exceeds %d", order.Quantity, g.Limit)
	}
	return nil
}

// MaxNotional caps quantity * price of a single order.
type MaxNotional struct {
	Limit float64
}

func (MaxNotional) Name() string { return "max_notional" }

func (g MaxNotional) Check(order types.Order, price float64) error {
	if g.Limit <= 0 {
		return nil
	}
	if notional := float64(order.Quantity) * price; notional > g.Limit {
		return fmt.Errorf("notional %.2f exceeds %.2f", notional, g.Limit)
	}
	return nil
}
