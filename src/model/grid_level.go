package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GridLevel is one rung of a grid order's price ladder. The ladder is
// computed at creation and immutable afterwards; Executed flips false→true
// exactly once when the level settles.
type GridLevel struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrderID string         `gorm:"size:64;index:idx_grid_order_level,unique;not null" json:"order_id"`
	Order   *StrategyOrder `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Level       int64           `gorm:"index:idx_grid_order_level,unique;not null" json:"level"`
	TargetPrice decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"target_price"`
	Executed    bool            `gorm:"not null;default:false" json:"executed"`
	ExecutedAt  *time.Time      `json:"executed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for grid levels.
func (GridLevel) TableName() string {
	return "grid_levels"
}
