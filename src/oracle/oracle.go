package oracle

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"strategyvault/src/model"
)

// PriceOracle returns the current exchange rate between two assets as a
// fixed-point integer rate. Implementations must be safe for concurrent
// use; the eligibility and settlement engines call them on every check.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, assetA, assetB string) (decimal.Decimal, error)
}

// StaticOracle returns configured rates, falling back to 1:1 for unknown
// pairs. It is the pluggable default for deployments without a feed.
type StaticOracle struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{rates: make(map[string]decimal.Decimal)}
}

func pairKey(assetA, assetB string) string {
	return assetA + "/" + assetB
}

// SetRate pins the rate for a pair.
func (o *StaticOracle) SetRate(assetA, assetB string, rate decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rates[pairKey(assetA, assetB)] = rate
}

// CurrentPrice returns the pinned rate, or 1 when the pair is unknown.
func (o *StaticOracle) CurrentPrice(_ context.Context, assetA, assetB string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if rate, ok := o.rates[pairKey(assetA, assetB)]; ok {
		return rate, nil
	}
	return decimal.NewFromInt(1), nil
}

// DBOracle reads the most recent observation written into oracle_prices by
// the price feed command. Unknown pairs fall back to 1:1 so that a fresh
// deployment stays usable before the feed has produced data.
type DBOracle struct {
	db *gorm.DB
}

func NewDBOracle(db *gorm.DB) *DBOracle {
	return &DBOracle{db: db}
}

func (o *DBOracle) CurrentPrice(ctx context.Context, assetA, assetB string) (decimal.Decimal, error) {
	var price model.OraclePrice

	err := o.db.WithContext(ctx).
		Where("base_asset = ? AND quote_asset = ?", assetA, assetB).
		Order("observed_at DESC").
		First(&price).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, err
	}

	return price.Rate, nil
}
