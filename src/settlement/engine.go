package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strategyvault/src/access"
	"strategyvault/src/connectors"
	"strategyvault/src/eligibility"
	"strategyvault/src/ledger"
	"strategyvault/src/model"
	"strategyvault/src/oracle"
	"strategyvault/src/repository"
	"strategyvault/src/utils"
)

// Engine performs the accounting mutation for one execution: it re-checks
// eligibility inside the order's exclusive mutation, calls the swap venue,
// and applies the balance and analytics updates. The venue call is the
// single point where external code runs; the per-order lock is held across
// it so a reentrant call cannot observe inconsistent state.
type Engine struct {
	orders      *repository.OrderRepository
	gasStations *repository.GasStationRepository
	ledger      ledger.AssetLedger
	venue       connectors.SwapVenue
	oracle      oracle.PriceOracle
	gate        *access.AccessControl

	logger *logrus.Entry
	now    func() time.Time
}

func NewEngine(
	orders *repository.OrderRepository,
	gasStations *repository.GasStationRepository,
	assetLedger ledger.AssetLedger,
	venue connectors.SwapVenue,
	priceOracle oracle.PriceOracle,
	gate *access.AccessControl,
	logger *logrus.Entry,
) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Engine{
		orders:      orders,
		gasStations: gasStations,
		ledger:      assetLedger,
		venue:       venue,
		oracle:      priceOracle,
		gate:        gate,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// SettlementResult reports one successful execution.
type SettlementResult struct {
	OrderID   string          `json:"order_id"`
	Index     int64           `json:"index"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Price     decimal.Decimal `json:"price"`
	Executor  string          `json:"executor"`
	Completed bool            `json:"completed"`
}

// ExecuteTWAP settles one time slice of a TWAP order.
func (e *Engine) ExecuteTWAP(ctx context.Context, id, executor string) (*SettlementResult, error) {
	if err := e.gate.RequireExecutor(executor); err != nil {
		return nil, err
	}

	var result *SettlementResult

	err := e.orders.Mutate(ctx, id, func(tx *gorm.DB, order *model.StrategyOrder) error {
		if order.StrategyType != model.StrategyTWAP {
			return fmt.Errorf("%w: order %s is not a twap order", model.ErrInvalidParameter, id)
		}

		now := e.now()
		if err := eligibility.CheckTWAP(order, now); err != nil {
			return err
		}

		amountIn := utils.MinDecimal(order.IntervalAmount, order.RemainingAmount)

		price, err := e.oracle.CurrentPrice(ctx, order.MakerAsset, order.TakerAsset)
		if err != nil {
			return fmt.Errorf("%w: oracle unavailable", model.ErrSwapFailed)
		}

		amountOut, gasUsed, err := e.performSwap(ctx, order, amountIn, price)
		if err != nil {
			return err
		}

		result, err = e.applyExecution(tx, order, amountIn, amountOut, gasUsed, price, executor, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExecuteGridLevel settles one rung of a grid order's ladder.
func (e *Engine) ExecuteGridLevel(ctx context.Context, id string, level int64, executor string) (*SettlementResult, error) {
	if err := e.gate.RequireExecutor(executor); err != nil {
		return nil, err
	}

	var result *SettlementResult

	err := e.orders.Mutate(ctx, id, func(tx *gorm.DB, order *model.StrategyOrder) error {
		if order.StrategyType != model.StrategyGrid {
			return fmt.Errorf("%w: order %s is not a grid order", model.ErrInvalidParameter, id)
		}

		now := e.now()

		gl, err := repository.GridLevelFor(tx, order.ID, level)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("%w: grid level %d", model.ErrInvalidParameter, level)
			}
			return err
		}

		price, err := e.oracle.CurrentPrice(ctx, order.MakerAsset, order.TakerAsset)
		if err != nil {
			return fmt.Errorf("%w: oracle unavailable", model.ErrSwapFailed)
		}

		if err := eligibility.CheckGrid(order, gl, now, price); err != nil {
			return err
		}

		// The final outstanding rung, whichever level it is, sweeps whatever
		// is left so truncation dust from the per-level split cannot strand
		// the order short of completion. Until then every rung moves the
		// per-level budget even when the ladder fills out of order.
		amountIn := utils.MinDecimal(order.IntervalAmount, order.RemainingAmount)
		if order.ExecutionCount == order.GridLevels-1 {
			amountIn = order.RemainingAmount
		}

		amountOut, gasUsed, err := e.performSwap(ctx, order, amountIn, price)
		if err != nil {
			return err
		}

		if err := repository.MarkGridLevelExecuted(tx, gl, now); err != nil {
			return err
		}

		result, err = e.applyExecution(tx, order, amountIn, amountOut, gasUsed, price, executor, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExecuteConditional settles a triggered conditional order in full.
func (e *Engine) ExecuteConditional(ctx context.Context, id, executor string) (*SettlementResult, error) {
	if err := e.gate.RequireExecutor(executor); err != nil {
		return nil, err
	}

	var result *SettlementResult

	err := e.orders.Mutate(ctx, id, func(tx *gorm.DB, order *model.StrategyOrder) error {
		if order.StrategyType != model.StrategyConditional {
			return fmt.Errorf("%w: order %s is not a conditional order", model.ErrInvalidParameter, id)
		}

		now := e.now()

		price, err := e.oracle.CurrentPrice(ctx, order.MakerAsset, order.TakerAsset)
		if err != nil {
			return fmt.Errorf("%w: oracle unavailable", model.ErrSwapFailed)
		}

		if err := eligibility.CheckConditional(order, now, price, e.dependencyLookup(ctx)); err != nil {
			return err
		}

		amountIn := order.RemainingAmount

		amountOut, gasUsed, err := e.performSwap(ctx, order, amountIn, price)
		if err != nil {
			return err
		}

		result, err = e.applyExecution(tx, order, amountIn, amountOut, gasUsed, price, executor, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ClaimVested releases the claimable vested amount to the beneficiary.
// Maker-only; executors have no business claiming.
func (e *Engine) ClaimVested(ctx context.Context, id, caller string) (decimal.Decimal, error) {
	var claimed decimal.Decimal

	err := e.orders.Mutate(ctx, id, func(tx *gorm.DB, order *model.StrategyOrder) error {
		if order.StrategyType != model.StrategyVesting {
			return fmt.Errorf("%w: order %s is not a vesting order", model.ErrInvalidParameter, id)
		}

		if caller != order.Maker {
			return model.ErrNotOrderMaker
		}

		now := e.now()
		if err := eligibility.CheckVesting(order, now); err != nil {
			return err
		}

		claimable := eligibility.Claimable(order, now)

		beneficiary := order.Beneficiary
		if beneficiary == "" {
			beneficiary = order.Maker
		}

		if err := e.ledger.Debit(ledger.VaultAccount, order.MakerAsset, claimable); err != nil {
			return err
		}
		if err := e.ledger.Credit(beneficiary, order.MakerAsset, claimable); err != nil {
			return err
		}

		order.ClaimedAmount = order.ClaimedAmount.Add(claimable)
		order.RemainingAmount = order.RemainingAmount.Sub(claimable)
		order.ExecutedAmount = order.ExecutedAmount.Add(claimable)

		if !order.RemainingAmount.IsPositive() {
			order.Status = model.OrderStatusCompleted
		}

		claimed = claimable

		e.logger.WithFields(logrus.Fields{
			"order_id":    order.ID,
			"claimed":     claimable.String(),
			"beneficiary": beneficiary,
			"status":      order.Status,
		}).Info("vested amount claimed")

		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	return claimed, nil
}

// FulfilGasStation fronts the gas currency for a gasless-swap request.
// ethReceived is what the executor put up; it must cover the gas cost
// captured at creation, and any excess is returned to the executor. The
// fulfilled flag transitions false→true exactly once.
func (e *Engine) FulfilGasStation(ctx context.Context, id, executor string, ethReceived decimal.Decimal) error {
	if err := e.gate.RequireExecutor(executor); err != nil {
		return err
	}

	return e.gasStations.Mutate(ctx, id, func(tx *gorm.DB, order *model.GasStationOrder) error {
		if err := eligibility.CheckGasStation(order); err != nil {
			return err
		}

		gasCost := order.GasCost()
		if ethReceived.LessThan(gasCost) {
			return fmt.Errorf("%w: received %s, gas cost %s",
				model.ErrInsufficientOutput, ethReceived.String(), gasCost.String())
		}

		// Pull the executor's payment first; fail-closed ledger means an
		// underfunded executor moves nothing.
		if err := e.ledger.Debit(executor, ledger.GasAsset, ethReceived); err != nil {
			return err
		}

		if err := e.ledger.Credit(order.Requester, ledger.GasAsset, gasCost); err != nil {
			return err
		}

		if excess := ethReceived.Sub(gasCost); excess.IsPositive() {
			if err := e.ledger.Credit(executor, ledger.GasAsset, excess); err != nil {
				return err
			}
		}

		// The executor is compensated with the input tokens locked at
		// creation, carrying the routing payload for its own swap.
		if err := e.ledger.Debit(ledger.VaultAccount, order.InputAsset, order.InputAmount); err != nil {
			return err
		}
		if err := e.ledger.Credit(executor, order.InputAsset, order.InputAmount); err != nil {
			return err
		}

		now := e.now()
		order.Fulfilled = true
		order.FulfilledAt = &now
		order.FulfilledBy = executor

		e.logger.WithFields(logrus.Fields{
			"order_id":  order.ID,
			"executor":  executor,
			"gas_cost":  gasCost.String(),
			"requester": order.Requester,
		}).Info("gas station order fulfilled")

		return nil
	})
}

// CanExecute reports whether the order could settle right now, with a
// human-readable reason when it cannot. Read-only: intended for the query
// surface and for executors probing before spending a settlement call.
func (e *Engine) CanExecute(ctx context.Context, id string) (bool, string) {
	order, err := e.orders.FindByID(ctx, id)
	if err != nil {
		return false, err.Error()
	}

	now := e.now()

	price, err := e.oracle.CurrentPrice(ctx, order.MakerAsset, order.TakerAsset)
	if err != nil {
		return false, "oracle unavailable"
	}

	switch order.StrategyType {
	case model.StrategyTWAP:
		if err := eligibility.CheckTWAP(order, now); err != nil {
			return false, err.Error()
		}
	case model.StrategyGrid:
		if level, ok := e.NextGridLevel(ctx, order); ok {
			return true, fmt.Sprintf("grid level %d executable", level)
		}
		return false, "no grid level within its price band"
	case model.StrategyVesting:
		if err := eligibility.CheckVesting(order, now); err != nil {
			return false, err.Error()
		}
	case model.StrategyConditional:
		if err := eligibility.CheckConditional(order, now, price, e.dependencyLookup(ctx)); err != nil {
			return false, err.Error()
		}
	default:
		return false, fmt.Sprintf("strategy %s is not executable", order.StrategyType)
	}

	return true, "eligible"
}

// NextGridLevel reports the first rung of the order's ladder that could
// settle at the current price, probing the levels the way CanExecute
// does. The second return is false when no rung is in band.
func (e *Engine) NextGridLevel(ctx context.Context, order *model.StrategyOrder) (int64, bool) {
	levels, err := e.orders.GridByOrderID(ctx, order.ID)
	if err != nil {
		return 0, false
	}

	price, err := e.oracle.CurrentPrice(ctx, order.MakerAsset, order.TakerAsset)
	if err != nil {
		return 0, false
	}

	now := e.now()
	for i := range levels {
		if eligibility.CheckGrid(order, &levels[i], now, price) == nil {
			return levels[i].Level, true
		}
	}
	return 0, false
}

func (e *Engine) dependencyLookup(ctx context.Context) eligibility.DependencyLookup {
	return func(id string) (*model.StrategyOrder, error) {
		return e.orders.FindByID(ctx, id)
	}
}

// performSwap runs the venue call and measures the actual output via the
// vault's before/after balance of the output asset. The measured amount,
// not the venue-reported one, is what settlement accounts with; only the
// receipt's gas figure is taken at the venue's word.
func (e *Engine) performSwap(
	ctx context.Context,
	order *model.StrategyOrder,
	amountIn decimal.Decimal,
	price decimal.Decimal,
) (decimal.Decimal, decimal.Decimal, error) {

	minOut := decimal.Zero
	if order.PriceLimit.IsPositive() {
		expected := amountIn.Mul(order.PriceLimit).Truncate(0)
		minOut = utils.ApplyBps(expected, utils.BpsDenominator-order.SlippageBps)
	}

	before := e.ledger.Balance(ledger.VaultAccount, order.TakerAsset)

	receipt, err := e.venue.ExecuteSwap(ctx, order.MakerAsset, order.TakerAsset, amountIn, "", minOut)
	if err != nil {
		if errors.Is(err, model.ErrSlippageExceeded) {
			return decimal.Zero, decimal.Zero, err
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", model.ErrSwapFailed, err)
	}

	measured := e.ledger.Balance(ledger.VaultAccount, order.TakerAsset).Sub(before)

	if measured.LessThan(minOut) || !measured.IsPositive() {
		return decimal.Zero, decimal.Zero, model.ErrSlippageExceeded
	}

	return measured, receipt.GasUsed, nil
}

// applyExecution does the post-swap accounting: amounts, analytics, the
// append-only history row, and the payout to the maker net of the protocol
// fee. Transitions the order to COMPLETED when the remainder hits zero.
func (e *Engine) applyExecution(
	tx *gorm.DB,
	order *model.StrategyOrder,
	amountIn, amountOut, gasUsed, price decimal.Decimal,
	executor string,
	now time.Time,
) (*SettlementResult, error) {

	index := order.ExecutionCount

	order.RemainingAmount = order.RemainingAmount.Sub(amountIn)
	order.ExecutedAmount = order.ExecutedAmount.Add(amountIn)
	order.ExecutionCount = index + 1
	order.AvgExecutionPrice = eligibility.UpdatedAveragePrice(order.AvgExecutionPrice, order.ExecutionCount, price)
	order.GasSpent = order.GasSpent.Add(gasUsed)
	order.LastExecutionAt = &now

	if order.PriceLimit.IsPositive() {
		expected := amountIn.Mul(order.PriceLimit).Truncate(0)
		order.RealizedPnl = order.RealizedPnl.Add(amountOut.Sub(expected))
	}

	if !order.RemainingAmount.IsPositive() {
		order.Status = model.OrderStatusCompleted
	}

	fee := utils.ApplyBps(amountOut, e.gate.FeeBps())
	payout := amountOut.Sub(fee)

	if err := e.ledger.Debit(ledger.VaultAccount, order.TakerAsset, amountOut); err != nil {
		return nil, err
	}
	if err := e.ledger.Credit(order.Maker, order.TakerAsset, payout); err != nil {
		return nil, err
	}
	if fee.IsPositive() {
		if err := e.ledger.Credit(ledger.FeeAccount, order.TakerAsset, fee); err != nil {
			return nil, err
		}
	}

	exec := &model.OrderExecution{
		OrderID:    order.ID,
		Index:      index,
		AmountIn:   amountIn,
		AmountOut:  amountOut,
		Price:      price,
		GasUsed:    gasUsed,
		Executor:   executor,
		ExecutedAt: now,
	}
	if err := repository.AppendExecution(tx, exec); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"index":      index,
		"amount_in":  amountIn.String(),
		"amount_out": amountOut.String(),
		"price":      price.String(),
		"executor":   executor,
		"status":     order.Status,
	}).Info("execution recorded")

	return &SettlementResult{
		OrderID:   order.ID,
		Index:     index,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Price:     price,
		Executor:  executor,
		Completed: order.Status == model.OrderStatusCompleted,
	}, nil
}
