package types

import "time"

// ExecutionMode selects simulated or real dispatch.
type ExecutionMode string

const (
	ModeDryRun ExecutionMode = "DRY_RUN"
	ModeLive   ExecutionMode = "LIVE"
)

// ExecutionStatus is the terminal outcome of one attempt.
type ExecutionStatus string

const (
	StatusBlocked ExecutionStatus = "BLOCKED"
	StatusDryRun  ExecutionStatus = "DRY_RUN"
	StatusLive    ExecutionStatus = "LIVE"
	StatusFailed  ExecutionStatus = "FAILED"
)

// BlockReason enumerates why the gate refused an order.
type BlockReason string

const (
	BlockAccountRisk        BlockReason = "ACCOUNT_RISK"
	BlockExecutionDisabled  BlockReason = "EXECUTION_DISABLED"
	BlockFeedDegraded       BlockReason = "FEED_DEGRADED"
	BlockStaleLTP           BlockReason = "STALE_LTP"
	BlockDecisionExpired    BlockReason = "DECISION_EXPIRED"
	BlockExcessiveDrift     BlockReason = "EXCESSIVE_DRIFT"
	BlockGuardrailViolation BlockReason = "GUARDRAIL_VIOLATION"
	BlockMissingDecision    BlockReason = "MISSING_DECISION"
)

// ExecutionRecord is written exactly once per attempted order.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	RequestID     string          `json:"request_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Exchange      string          `json:"exchange"`
	Side          Side            `json:"side"`
	Quantity      int64           `json:"quantity"`
	Price         float64         `json:"price"`
	Mode          ExecutionMode   `json:"mode"`
	FeedState     FeedStatus      `json:"feed_state"`
	Status        ExecutionStatus `json:"status"`
	BlockReason   *BlockReason    `json:"block_reason,omitempty"`
	BlockDetail   string          `json:"block_detail,omitempty"`
	Broker        *BrokerID       `json:"broker,omitempty"`
	BrokerOrderID *string         `json:"broker_order_id,omitempty"`
	DriftBps      *float64        `json:"drift_bps,omitempty"`
	DecisionID    *string         `json:"decision_id,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RiskResult is the account risk collaborator's answer for one order.
type RiskResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
