package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OracleKindStatic = "static"
	OracleKindFeed   = "feed"
)

// ConditionalParams carries the trigger configuration attached to a
// conditional order.
type ConditionalParams struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrderID string `gorm:"size:64;uniqueIndex;not null" json:"order_id"`

	OracleRef    string          `gorm:"size:128" json:"oracle_ref"`
	OracleKind   string          `gorm:"size:20;default:static" json:"oracle_kind"`
	TriggerPrice decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"trigger_price"`
	// TriggerAbove selects the comparison direction: price >= trigger when
	// true, price <= trigger when false.
	TriggerAbove bool `gorm:"not null" json:"trigger_above"`

	TimeGate       *time.Time `json:"time_gate,omitempty"`
	DependsOnOrder *string    `gorm:"size:64" json:"depends_on_order,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for conditional params.
func (ConditionalParams) TableName() string {
	return "conditional_params"
}
