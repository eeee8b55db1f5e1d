package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GasStationOrder is a gasless-swap request: the requester deposits input
// tokens and an executor later fronts the gas currency. Fulfilled is the
// idempotence guard: it may only transition false to true once.
type GasStationOrder struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	Requester string `gorm:"size:128;index;not null" json:"requester"`

	InputAsset  string          `gorm:"size:64;not null" json:"input_asset"`
	InputAmount decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"input_amount"`

	GasUnits decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"gas_units"`
	// Gas price captured at creation; the cost quoted to the requester does
	// not float with later price moves.
	GasPrice decimal.Decimal `gorm:"type:numeric(40,0);not null" json:"gas_price"`

	RoutingPayload string `gorm:"type:text" json:"routing_payload"`

	Fulfilled   bool       `gorm:"not null;default:false" json:"fulfilled"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
	FulfilledBy string     `gorm:"size:128" json:"fulfilled_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GasCost is gasUnits * gasPrice, both captured at creation.
func (g *GasStationOrder) GasCost() decimal.Decimal {
	return g.GasUnits.Mul(g.GasPrice)
}

// TableName allows you to control the exact table name for gas station orders.
func (GasStationOrder) TableName() string {
	return "gas_station_orders"
}
