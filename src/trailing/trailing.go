package trailing

import (
	"github.com/shopspring/decimal"

	"strategyvault/src/model"
	"strategyvault/src/utils"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func peakOf(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	peak := prices[0]
	for _, p := range prices[1:] {
		if p.GreaterThan(peak) {
			peak = p
		}
	}
	return peak
}

func troughOf(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	trough := prices[0]
	for _, p := range prices[1:] {
		if p.LessThan(trough) {
			trough = p
		}
	}
	return trough
}

// ComputeNextStop ratchets a trailing stop against observed prices.
//
// Long:
// - anchor: highest observed price
// - candidate: anchor minus the trail distance
// - update: stop = max(stop, candidate)
//
// Short:
// - anchor: lowest observed price
// - candidate: anchor plus the trail distance
// - update: stop = min(stop, candidate)
//
// The stop never loosens; moved reports whether it tightened.
func ComputeNextStop(
	side Side,
	currentStop decimal.Decimal,
	prices []decimal.Decimal,
	trailPctBps int64,
) (newStop decimal.Decimal, moved bool) {
	if len(prices) == 0 || trailPctBps <= 0 {
		return currentStop, false
	}

	switch side {
	case SideLong:
		candidate := utils.ApplyBps(peakOf(prices), utils.BpsDenominator-trailPctBps)

		if candidate.GreaterThan(currentStop) {
			return candidate, true
		}
		return currentStop, false

	case SideShort:
		candidate := utils.ApplyBps(troughOf(prices), utils.BpsDenominator+trailPctBps)

		// A zero stop means unset; any candidate initializes it.
		if currentStop.IsZero() || candidate.LessThan(currentStop) {
			return candidate, true
		}
		return currentStop, false

	default:
		return currentStop, false
	}
}

// StopForOrder recomputes the long-side stop for a trailing stop order from
// its recorded execution prices.
func StopForOrder(order *model.StrategyOrder, currentStop decimal.Decimal, executions []model.OrderExecution) (decimal.Decimal, bool) {
	if order.StrategyType != model.StrategyTrailingStop || order.TrailPctBps <= 0 {
		return currentStop, false
	}

	prices := make([]decimal.Decimal, 0, len(executions))
	for _, e := range executions {
		prices = append(prices, e.Price)
	}

	return ComputeNextStop(SideLong, currentStop, prices, order.TrailPctBps)
}
