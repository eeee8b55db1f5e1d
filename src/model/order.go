package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy types. DCA and rebalancing are reserved names the creation API
// rejects until the strategies are specified.
const (
	StrategyTWAP         = "twap"
	StrategyGrid         = "grid"
	StrategyVesting      = "vesting"
	StrategyGasStation   = "gas_station"
	StrategyTrailingStop = "trailing_stop"
	StrategyConditional  = "conditional"
	StrategyDCA          = "dca"
	StrategyRebalancing  = "rebalancing"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusActive    = "active"
	OrderStatusPaused    = "paused"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"
)

// StrategyOrder is the central record: one multi-step execution plan whose
// committed amount is fulfilled over many settlements. RemainingAmount plus
// ExecutedAmount always equals TotalAmount; RemainingAmount only decreases,
// except on cancel which zeroes it after the refund.
type StrategyOrder struct {
	ID         string `gorm:"primaryKey;size:64" json:"id"`
	Maker      string `gorm:"size:128;index;not null" json:"maker"`
	MakerAsset string `gorm:"size:64;not null" json:"maker_asset"`
	TakerAsset string `gorm:"size:64;not null" json:"taker_asset"`

	StrategyType string `gorm:"size:30;not null;index" json:"strategy_type"`
	Status       string `gorm:"size:20;not null;default:active;index" json:"status"`

	TotalAmount     decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"total_amount"`
	RemainingAmount decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"remaining_amount"`
	ExecutedAmount  decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"executed_amount"`

	// Time-sliced strategies.
	IntervalAmount   decimal.Decimal `gorm:"type:numeric(40,0)" json:"interval_amount"`
	IntervalDuration int64           `json:"interval_duration"` // seconds

	PriceLimit  decimal.Decimal `gorm:"type:numeric(40,0)" json:"price_limit"`
	SlippageBps int64           `json:"slippage_bps"`

	// Grid strategies. The per-level price ladder lives in grid_levels.
	GridLevels int64 `json:"grid_levels"`

	// Vesting strategies. MakerAsset == TakerAsset for these.
	VestingStart    *time.Time      `json:"vesting_start,omitempty"`
	VestingDuration int64           `json:"vesting_duration"` // seconds
	CliffPeriod     int64           `json:"cliff_period"`     // seconds
	Beneficiary     string          `gorm:"size:128" json:"beneficiary,omitempty"`
	ClaimedAmount   decimal.Decimal `gorm:"type:numeric(40,0)" json:"claimed_amount"`

	// Trailing stop strategies. Creation-validated only; settlement is not
	// implemented for this type.
	TrailPctBps int64 `json:"trail_pct_bps"`

	// Execution bookkeeping.
	LastExecutionAt   *time.Time      `json:"last_execution_at,omitempty"`
	ExecutionCount    int64           `json:"execution_count"`
	AvgExecutionPrice decimal.Decimal `gorm:"type:numeric(40,0)" json:"avg_execution_price"`
	GasSpent          decimal.Decimal `gorm:"type:numeric(40,0)" json:"gas_spent"`
	RealizedPnl       decimal.Decimal `gorm:"type:numeric(40,0)" json:"realized_pnl"`

	Deadline  *time.Time `gorm:"index" json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Executions  []OrderExecution   `gorm:"foreignKey:OrderID" json:"executions,omitempty"`
	Grid        []GridLevel        `gorm:"foreignKey:OrderID" json:"grid,omitempty"`
	Conditional *ConditionalParams `gorm:"foreignKey:OrderID" json:"conditional,omitempty"`
}

// TableName allows you to control the exact table name for strategy orders.
func (StrategyOrder) TableName() string {
	return "strategy_orders"
}

// IsExpired reports the derived expiry condition. The stored status is not
// rewritten when a deadline passes; eligibility and the query surface treat
// expiry as blocking on their own.
func (o *StrategyOrder) IsExpired(now time.Time) bool {
	return o.Deadline != nil && now.After(*o.Deadline)
}

// EffectiveStatus is what the query surface reports: the stored status,
// except that an active or paused order past its deadline reads as expired.
func (o *StrategyOrder) EffectiveStatus(now time.Time) string {
	if (o.Status == OrderStatusActive || o.Status == OrderStatusPaused) && o.IsExpired(now) {
		return OrderStatusExpired
	}
	return o.Status
}
