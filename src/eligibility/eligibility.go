// Package eligibility decides whether an order may be executed right now.
// Every check is a pure function of an order snapshot, the current time,
// the current price and a dependency lookup. No state is touched, so the
// settlement engine re-runs the same checks inside its exclusive mutation
// without trusting anything the caller verified earlier.
package eligibility

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"strategyvault/src/model"
	"strategyvault/src/utils"
)

// DependencyLookup resolves the order a conditional order depends on.
type DependencyLookup func(id string) (*model.StrategyOrder, error)

// CheckActive is the guard shared by every settling strategy: the order
// must be stored ACTIVE, not past its deadline, and not exhausted.
func CheckActive(order *model.StrategyOrder, now time.Time) error {
	switch order.Status {
	case model.OrderStatusActive:
	case model.OrderStatusCompleted:
		return model.ErrOrderCompleted
	default:
		return model.ErrOrderNotActive
	}

	if order.IsExpired(now) {
		return model.ErrOrderExpired
	}

	if !order.RemainingAmount.IsPositive() {
		return model.ErrOrderCompleted
	}

	return nil
}

// CheckTWAP verifies the interval has elapsed since the last execution
// (creation time before the first one). The boundary instant is eligible.
func CheckTWAP(order *model.StrategyOrder, now time.Time) error {
	if err := CheckActive(order, now); err != nil {
		return err
	}

	baseline := order.CreatedAt
	if order.LastExecutionAt != nil {
		baseline = *order.LastExecutionAt
	}

	nextAt := baseline.Add(time.Duration(order.IntervalDuration) * time.Second)
	if now.Before(nextAt) {
		return fmt.Errorf("%w: next execution at %s", model.ErrTooEarly, nextAt.UTC().Format(time.RFC3339))
	}

	return nil
}

// GridBand returns the inclusive price band for a level target: one percent
// either side, truncated toward zero like the rest of the fixed-point math.
func GridBand(target decimal.Decimal) (low, high decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	low = utils.DivTrunc(target.Mul(decimal.NewFromInt(99)), hundred)
	high = utils.DivTrunc(target.Mul(decimal.NewFromInt(101)), hundred)
	return low, high
}

// CheckGrid verifies the level exists, has not been executed, and that the
// current price sits inside the level's band (bounds inclusive).
func CheckGrid(order *model.StrategyOrder, level *model.GridLevel, now time.Time, price decimal.Decimal) error {
	if err := CheckActive(order, now); err != nil {
		return err
	}

	if level == nil || level.Level >= order.GridLevels {
		return fmt.Errorf("%w: grid level out of range", model.ErrInvalidParameter)
	}

	if level.Executed {
		return model.ErrLevelAlreadyExecuted
	}

	low, high := GridBand(level.TargetPrice)
	if price.LessThan(low) || price.GreaterThan(high) {
		return fmt.Errorf("%w: price %s outside [%s, %s]",
			model.ErrPriceConditionNotMet, price.String(), low.String(), high.String())
	}

	return nil
}

// VestedAmount computes how much of the total has vested at now: zero
// before the cliff ends, the full total at or past the vesting end, and a
// truncating linear interpolation in between.
func VestedAmount(order *model.StrategyOrder, now time.Time) decimal.Decimal {
	if order.VestingStart == nil {
		return decimal.Zero
	}

	start := *order.VestingStart
	cliffEnd := start.Add(time.Duration(order.CliffPeriod) * time.Second)
	vestingEnd := start.Add(time.Duration(order.VestingDuration) * time.Second)

	if now.Before(cliffEnd) {
		return decimal.Zero
	}
	if !now.Before(vestingEnd) {
		return order.TotalAmount
	}

	elapsed := decimal.NewFromInt(int64(now.Sub(cliffEnd) / time.Second))
	span := decimal.NewFromInt(order.VestingDuration - order.CliffPeriod)

	return utils.DivTrunc(order.TotalAmount.Mul(elapsed), span)
}

// Claimable is the vested amount not yet claimed.
func Claimable(order *model.StrategyOrder, now time.Time) decimal.Decimal {
	claimable := VestedAmount(order, now).Sub(order.ClaimedAmount)
	if claimable.IsNegative() {
		return decimal.Zero
	}
	return claimable
}

// CheckVesting verifies the cliff has passed and something is claimable.
func CheckVesting(order *model.StrategyOrder, now time.Time) error {
	if order.Status != model.OrderStatusActive {
		if order.Status == model.OrderStatusCompleted {
			return model.ErrOrderCompleted
		}
		return model.ErrOrderNotActive
	}

	if order.VestingStart == nil {
		return fmt.Errorf("%w: missing vesting start", model.ErrInvalidParameter)
	}

	cliffEnd := order.VestingStart.Add(time.Duration(order.CliffPeriod) * time.Second)
	if now.Before(cliffEnd) {
		return fmt.Errorf("%w: cliff ends at %s", model.ErrNothingToClaim, cliffEnd.UTC().Format(time.RFC3339))
	}

	if !Claimable(order, now).IsPositive() {
		return model.ErrNothingToClaim
	}

	return nil
}

// CheckConditional verifies the price trigger, the optional time gate and
// the optional dependency.
func CheckConditional(
	order *model.StrategyOrder,
	now time.Time,
	price decimal.Decimal,
	dep DependencyLookup,
) error {

	if err := CheckActive(order, now); err != nil {
		return err
	}

	cond := order.Conditional
	if cond == nil {
		return fmt.Errorf("%w: missing conditional params", model.ErrInvalidParameter)
	}

	if cond.TimeGate != nil && now.Before(*cond.TimeGate) {
		return fmt.Errorf("%w: time gate at %s", model.ErrTooEarly, cond.TimeGate.UTC().Format(time.RFC3339))
	}

	if cond.TriggerAbove {
		if price.LessThan(cond.TriggerPrice) {
			return fmt.Errorf("%w: price %s below trigger %s",
				model.ErrPriceConditionNotMet, price.String(), cond.TriggerPrice.String())
		}
	} else {
		if price.GreaterThan(cond.TriggerPrice) {
			return fmt.Errorf("%w: price %s above trigger %s",
				model.ErrPriceConditionNotMet, price.String(), cond.TriggerPrice.String())
		}
	}

	if cond.DependsOnOrder != nil {
		if dep == nil {
			return model.ErrDependencyNotSatisfied
		}

		parent, err := dep(*cond.DependsOnOrder)
		if err != nil {
			return model.ErrDependencyNotSatisfied
		}
		if parent.Status != model.OrderStatusCompleted {
			return model.ErrDependencyNotSatisfied
		}
	}

	return nil
}

// CheckGasStation verifies the one-shot fulfilment guard.
func CheckGasStation(order *model.GasStationOrder) error {
	if order.Fulfilled {
		return model.ErrAlreadyFulfilled
	}
	return nil
}

// UpdatedAveragePrice folds one more execution price into a running mean
// with truncating division: avg' = (avg*(n-1) + price) / n, where n is the
// execution count including the new one.
func UpdatedAveragePrice(avg decimal.Decimal, n int64, price decimal.Decimal) decimal.Decimal {
	if n <= 1 {
		return price
	}
	sum := avg.Mul(decimal.NewFromInt(n - 1)).Add(price)
	return utils.DivTrunc(sum, decimal.NewFromInt(n))
}
