package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OraclePrice is one observed exchange rate for an asset pair, written by
// the price feed command and read by the database-backed oracle.
type OraclePrice struct {
	ID uint `gorm:"primaryKey" json:"id"`

	BaseAsset  string          `gorm:"size:64;index:idx_oracle_pair;not null" json:"base_asset"`
	QuoteAsset string          `gorm:"size:64;index:idx_oracle_pair;not null" json:"quote_asset"`
	Rate       decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"rate"`
	Source     string          `gorm:"size:64" json:"source"`

	ObservedAt time.Time `gorm:"index" json:"observed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for oracle prices.
func (OraclePrice) TableName() string {
	return "oracle_prices"
}
