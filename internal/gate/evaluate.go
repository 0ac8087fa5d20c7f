package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/shopspring/decimal"
)

// State is a step of the gate state machine.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateRiskChecked      State = "RISK_CHECKED"
	StateGateChecked      State = "GATE_CHECKED"
	StateExpiryChecked    State = "EXPIRY_CHECKED"
	StateDriftChecked     State = "DRIFT_CHECKED"
	StateGuardrailChecked State = "GUARDRAIL_CHECKED"
	StateDispatching      State = "DISPATCHING"
	StateBlocked          State = "BLOCKED"
	StateDryRunExecuted   State = "DRY_RUN_EXECUTED"
	StateLiveExecuted     State = "LIVE_EXECUTED"
	StateFailed           State = "FAILED"
)

// FeedScope selects whether feed gating looks at the order's instrument or
// the whole feed.
type FeedScope string

const (
	FeedScopeSymbol FeedScope = "symbol"
	FeedScopeGlobal FeedScope = "global"
)

var bpsFactor = decimal.NewFromInt(10000)

// Inputs is everything captured at gate entry for one order.
type Inputs struct {
	Order    types.Order
	Decision *types.TradeDecision
	Mode     types.ExecutionMode
	Enabled  bool
	Feed     types.FeedState
	Price    float64
	PriceAt  time.Time // zero when freshness is unknown
	Risk     types.RiskResult
	Now      time.Time
}

// Verdict is the result of running the checks. Reason is empty when every
// check passed.
type Verdict struct {
	Stage      State
	Reason     types.BlockReason
	Detail     string
	FeedStatus types.FeedStatus
	DriftBps   *float64
}

// Passed reports whether the order may be dispatched.
func (v Verdict) Passed() bool { return v.Reason == "" }

// Policy holds the static thresholds.
type Policy struct {
	Freshness     time.Duration
	DriftBps      float64
	IndexDriftBps float64
	IndexSymbols  map[string]bool // upper-cased symbols
	Scope         FeedScope
	Guardrails    []Guardrail
}

// Evaluate runs the checks in order and stops at the first block. It
// depends only on its arguments, so the same inputs give the same verdict.
func (p Policy) Evaluate(in Inputs) Verdict {
	v := Verdict{Stage: StateReceived, FeedStatus: p.feedStatus(in)}

	if in.Mode == types.ModeLive && in.Decision == nil {
		return v.block(types.BlockMissingDecision, "live execution requires a trade decision")
	}

	if !in.Risk.Allowed {
		reason := in.Risk.Reason
		if reason == "" {
			reason = "account risk check refused the order"
		}
		return v.block(types.BlockAccountRisk, reason)
	}
	v.Stage = StateRiskChecked

	if !in.Enabled {
		return v.block(types.BlockExecutionDisabled, "execution is disabled")
	}
	if v.FeedStatus != types.FeedHealthy {
		return v.block(types.BlockFeedDegraded, fmt.Sprintf("feed is %s", v.FeedStatus))
	}
	if in.Price <= 0 || in.PriceAt.IsZero() {
		return v.block(types.BlockStaleLTP, "no price with known freshness")
	}
	if age := in.Now.Sub(in.PriceAt); age > p.Freshness {
		return v.block(types.BlockStaleLTP, fmt.Sprintf("price is %s old (max %s)", age.Round(time.Millisecond), p.Freshness))
	}
	v.Stage = StateGateChecked

	if in.Decision != nil && in.Now.After(in.Decision.ValidTill) {
		return v.block(types.BlockDecisionExpired,
			fmt.Sprintf("decision %s expired at %s", in.Decision.ID, in.Decision.ValidTill.Format(time.RFC3339)))
	}
	v.Stage = StateExpiryChecked

	if in.Decision != nil {
		if in.Decision.DecisionLTP <= 0 {
			return v.block(types.BlockExcessiveDrift, "decision price must be positive")
		}
		drift := DriftBps(in.Decision.DecisionLTP, in.Price)
		v.DriftBps = &drift
		limit := p.driftLimit(in.Order.Symbol)
		if drift > limit {
			return v.block(types.BlockExcessiveDrift,
				fmt.Sprintf("drift %.2f bps exceeds %.2f bps", drift, limit))
		}
	}
	v.Stage = StateDriftChecked

	if in.Mode == types.ModeLive && in.Decision != nil {
		for _, g := range p.Guardrails {
			if err := g.Check(in.Order, in.Price); err != nil {
				return v.block(types.BlockGuardrailViolation, fmt.Sprintf("%s: %v", g.Name(), err))
			}
		}
	}
	v.Stage = StateGuardrailChecked
	return v
}

// DriftBps returns |current - reference| / reference in basis points.
func DriftBps(reference, current float64) float64 {
	ref := decimal.NewFromFloat(reference)
	cur := decimal.NewFromFloat(current)
	return cur.Sub(ref).Abs().Div(ref).Mul(bpsFactor).Round(4).InexactFloat64()
}

func (p Policy) driftLimit(symbol string) float64 {
	if p.IndexSymbols[strings.ToUpper(symbol)] {
		return p.IndexDriftBps
	}
	return p.DriftBps
}

func (p Policy) feedStatus(in Inputs) types.FeedStatus {
	if p.Scope == FeedScopeGlobal {
		if in.Feed.Status == "" {
			return types.FeedDown
		}
		return in.Feed.Status
	}
	return in.Feed.InstrumentStatus(in.Order.Key())
}

func (v Verdict) block(reason types.BlockReason, detail string) Verdict {
	v.Reason = reason
	v.Detail = detail
	return v
}
