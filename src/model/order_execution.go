package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderExecution stores the append-only history of settlements for a
// strategy order. One row per successful settlement; the row index gives
// the execution index and the timestamp/price histories stay in lockstep
// by construction.
type OrderExecution struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrderID string         `gorm:"size:64;index;not null" json:"order_id"`
	Order   *StrategyOrder `gorm:"constraint:OnDelete:CASCADE" json:"order,omitempty"`

	Index     int64           `gorm:"not null" json:"index"`
	AmountIn  decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"amount_in"`
	AmountOut decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"amount_out"`
	Price     decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"price"`
	GasUsed   decimal.Decimal `gorm:"type:numeric(40,0)" json:"gas_used"`
	Executor  string          `gorm:"size:128" json:"executor"`

	ExecutedAt time.Time `json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for executions.
func (OrderExecution) TableName() string {
	return "order_executions"
}
