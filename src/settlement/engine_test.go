package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"strategyvault/src/access"
	"strategyvault/src/connectors"
	"strategyvault/src/ledger"
	"strategyvault/src/model"
	"strategyvault/src/oracle"
	"strategyvault/src/repository"
	"strategyvault/src/utils"
)

const (
	testOwner    = "owner-1"
	testExecutor = "executor-1"
	testMaker    = "maker-1"
)

var testBase = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testDBSeq atomic.Int64

type harness struct {
	orders      *repository.OrderRepository
	gasStations *repository.GasStationRepository
	ledger      *ledger.InMemoryLedger
	oracle      *oracle.StaticOracle
	venue       *connectors.StubVenue
	gate        *access.AccessControl
	engine      *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:settlement_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	err = db.AutoMigrate(
		&model.StrategyOrder{},
		&model.OrderExecution{},
		&model.GridLevel{},
		&model.ConditionalParams{},
		&model.GasStationOrder{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	h := &harness{
		orders:      repository.NewOrderRepository().WithDB(db),
		gasStations: repository.NewGasStationRepository().WithDB(db),
		ledger:      ledger.NewInMemoryLedger(),
		oracle:      oracle.NewStaticOracle(),
		gate:        access.NewAccessControl(testOwner),
	}
	h.venue = connectors.NewStubVenue(h.ledger, h.oracle)

	if err := h.gate.AddExecutor(testOwner, testExecutor); err != nil {
		t.Fatalf("failed to authorize test executor: %v", err)
	}

	h.engine = NewEngine(h.orders, h.gasStations, h.ledger, h.venue, h.oracle, h.gate, nil)
	return h
}

// at pins the engine clock.
func (h *harness) at(now time.Time) {
	h.engine.WithNow(func() time.Time { return now })
}

func (h *harness) seedOrder(t *testing.T, order *model.StrategyOrder, grid []model.GridLevel, cond *model.ConditionalParams) {
	t.Helper()

	if err := h.orders.Create(context.Background(), order, grid, cond); err != nil {
		t.Fatalf("failed to seed order %s: %v", order.ID, err)
	}
	// Lock the committed amount in the vault, as creation would.
	h.ledger.SetBalance(ledger.VaultAccount, order.MakerAsset,
		h.ledger.Balance(ledger.VaultAccount, order.MakerAsset).Add(order.TotalAmount))
}

func twapOrder(id string, total, interval string, intervalSeconds int64) *model.StrategyOrder {
	return &model.StrategyOrder{
		ID:               id,
		Maker:            testMaker,
		MakerAsset:       "WETH",
		TakerAsset:       "USDC",
		StrategyType:     model.StrategyTWAP,
		Status:           model.OrderStatusActive,
		TotalAmount:      d(total),
		RemainingAmount:  d(total),
		ExecutedAmount:   decimal.Zero,
		IntervalAmount:   d(interval),
		IntervalDuration: intervalSeconds,
		PriceLimit:       d("2500"),
		SlippageBps:      100,
		CreatedAt:        testBase,
	}
}

func TestExecuteTWAPSettlesOneSlice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, twapOrder("twap-1", "1000", "100", 60), nil, nil)
	h.oracle.SetRate("WETH", "USDC", d("2500"))
	if err := h.gate.SetProtocolFee(testOwner, 50); err != nil {
		t.Fatalf("failed to set fee: %v", err)
	}

	h.at(testBase.Add(60 * time.Second))

	result, err := h.engine.ExecuteTWAP(ctx, "twap-1", testExecutor)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}

	if result.Index != 0 {
		t.Fatalf("expected index 0, got %d", result.Index)
	}
	if !result.AmountIn.Equal(d("100")) || !result.AmountOut.Equal(d("250000")) {
		t.Fatalf("unexpected amounts: in %s out %s", result.AmountIn.String(), result.AmountOut.String())
	}
	if result.Completed {
		t.Fatalf("order must not complete on the first slice")
	}

	// Payout is net of the 50 bps fee: 250000 - 1250 = 248750.
	if got := h.ledger.Balance(testMaker, "USDC"); !got.Equal(d("248750")) {
		t.Fatalf("expected maker payout 248750, got %s", got.String())
	}
	if got := h.ledger.Balance(ledger.FeeAccount, "USDC"); !got.Equal(d("1250")) {
		t.Fatalf("expected fee 1250, got %s", got.String())
	}
	if got := h.ledger.Balance(ledger.VaultAccount, "WETH"); !got.Equal(d("900")) {
		t.Fatalf("expected vault to hold 900 WETH, got %s", got.String())
	}
	if got := h.ledger.Balance(ledger.VaultAccount, "USDC"); !got.IsZero() {
		t.Fatalf("vault must not retain output, got %s", got.String())
	}

	order, err := h.orders.FindByID(ctx, "twap-1")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if !order.RemainingAmount.Equal(d("900")) || !order.ExecutedAmount.Equal(d("100")) {
		t.Fatalf("unexpected amounts: remaining %s executed %s",
			order.RemainingAmount.String(), order.ExecutedAmount.String())
	}
	if order.ExecutionCount != 1 {
		t.Fatalf("expected execution count 1, got %d", order.ExecutionCount)
	}
	if !order.AvgExecutionPrice.Equal(d("2500")) {
		t.Fatalf("expected avg price 2500, got %s", order.AvgExecutionPrice.String())
	}
	if !order.RealizedPnl.IsZero() {
		t.Fatalf("expected zero pnl at the limit price, got %s", order.RealizedPnl.String())
	}
	// The stub venue attributes a flat 21000 gas per fill.
	if !order.GasSpent.Equal(d("21000")) {
		t.Fatalf("expected 21000 gas attributed, got %s", order.GasSpent.String())
	}

	execs, err := h.orders.ExecutionsByOrderID(ctx, "twap-1")
	if err != nil {
		t.Fatalf("failed to list executions: %v", err)
	}
	if len(execs) != 1 || execs[0].Index != 0 {
		t.Fatalf("expected one history row with index 0, got %+v", execs)
	}
	if !execs[0].GasUsed.Equal(d("21000")) {
		t.Fatalf("expected history row to carry gas 21000, got %s", execs[0].GasUsed.String())
	}

	// The interval has not elapsed again.
	if _, err := h.engine.ExecuteTWAP(ctx, "twap-1", testExecutor); !errors.Is(err, model.ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly on immediate retry, got %v", err)
	}
}

func TestExecuteTWAPAnalyticsAcrossSlices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, twapOrder("twap-2", "200", "100", 60), nil, nil)
	h.oracle.SetRate("WETH", "USDC", d("2500"))

	h.at(testBase.Add(60 * time.Second))
	if _, err := h.engine.ExecuteTWAP(ctx, "twap-2", testExecutor); err != nil {
		t.Fatalf("first slice failed: %v", err)
	}

	// Second slice settles above the limit price and completes the order.
	h.oracle.SetRate("WETH", "USDC", d("2601"))
	h.at(testBase.Add(120 * time.Second))

	result, err := h.engine.ExecuteTWAP(ctx, "twap-2", testExecutor)
	if err != nil {
		t.Fatalf("second slice failed: %v", err)
	}
	if result.Index != 1 || !result.Completed {
		t.Fatalf("expected completing index 1, got %+v", result)
	}

	order, err := h.orders.FindByID(ctx, "twap-2")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if order.Status != model.OrderStatusCompleted {
		t.Fatalf("expected completed status, got %s", order.Status)
	}
	// (2500 + 2601) / 2 truncates to 2550.
	if !order.AvgExecutionPrice.Equal(d("2550")) {
		t.Fatalf("expected truncated avg 2550, got %s", order.AvgExecutionPrice.String())
	}
	// Second slice outperformed the limit: 260100 - 250000.
	if !order.RealizedPnl.Equal(d("10100")) {
		t.Fatalf("expected pnl 10100, got %s", order.RealizedPnl.String())
	}
	if !order.GasSpent.Equal(d("42000")) {
		t.Fatalf("expected gas to accumulate to 42000 over two slices, got %s", order.GasSpent.String())
	}

	if _, err := h.engine.ExecuteTWAP(ctx, "twap-2", testExecutor); !errors.Is(err, model.ErrOrderCompleted) {
		t.Fatalf("expected ErrOrderCompleted after exhaustion, got %v", err)
	}
}

func TestExecuteTWAPSlippageLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, twapOrder("twap-3", "1000", "100", 60), nil, nil)
	// Limit 2500 with 100 bps slippage needs at least 247500; 2400 yields 240000.
	h.oracle.SetRate("WETH", "USDC", d("2400"))

	h.at(testBase.Add(60 * time.Second))

	if _, err := h.engine.ExecuteTWAP(ctx, "twap-3", testExecutor); !errors.Is(err, model.ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}

	order, err := h.orders.FindByID(ctx, "twap-3")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if !order.RemainingAmount.Equal(d("1000")) || order.ExecutionCount != 0 {
		t.Fatalf("failed settlement must not mutate the order: %+v", order)
	}
	if got := h.ledger.Balance(ledger.VaultAccount, "WETH"); !got.Equal(d("1000")) {
		t.Fatalf("failed settlement must not move funds, vault holds %s", got.String())
	}
	if got := h.ledger.Balance(testMaker, "USDC"); !got.IsZero() {
		t.Fatalf("maker must receive nothing, got %s", got.String())
	}

	execs, err := h.orders.ExecutionsByOrderID(ctx, "twap-3")
	if err != nil {
		t.Fatalf("failed to list executions: %v", err)
	}
	if len(execs) != 0 {
		t.Fatalf("expected empty history, got %d rows", len(execs))
	}
}

func TestExecuteTWAPVenueFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, twapOrder("twap-4", "1000", "100", 60), nil, nil)
	h.oracle.SetRate("WETH", "USDC", d("2500"))
	h.venue.FailNext = true

	h.at(testBase.Add(60 * time.Second))

	if _, err := h.engine.ExecuteTWAP(ctx, "twap-4", testExecutor); !errors.Is(err, model.ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed, got %v", err)
	}

	order, err := h.orders.FindByID(ctx, "twap-4")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if !order.RemainingAmount.Equal(d("1000")) || order.ExecutionCount != 0 {
		t.Fatalf("venue failure must not mutate the order: %+v", order)
	}
}

func TestExecuteRequiresAuthorizedExecutor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, twapOrder("twap-5", "1000", "100", 60), nil, nil)
	h.at(testBase.Add(60 * time.Second))

	if _, err := h.engine.ExecuteTWAP(ctx, "twap-5", "stranger"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// The owner may settle without being allow-listed.
	h.oracle.SetRate("WETH", "USDC", d("2500"))
	if _, err := h.engine.ExecuteTWAP(ctx, "twap-5", testOwner); err != nil {
		t.Fatalf("owner settlement failed: %v", err)
	}
}

func gridOrder(id string, total string, levels int64, targets ...string) (*model.StrategyOrder, []model.GridLevel) {
	order := &model.StrategyOrder{
		ID:              id,
		Maker:           testMaker,
		MakerAsset:      "WETH",
		TakerAsset:      "USDC",
		StrategyType:    model.StrategyGrid,
		Status:          model.OrderStatusActive,
		TotalAmount:     d(total),
		RemainingAmount: d(total),
		ExecutedAmount:  decimal.Zero,
		GridLevels:      levels,
		IntervalAmount:  utils.DivTrunc(d(total), decimal.NewFromInt(levels)),
		CreatedAt:       testBase,
	}

	grid := make([]model.GridLevel, 0, levels)
	for i, target := range targets {
		grid = append(grid, model.GridLevel{Level: int64(i), TargetPrice: d(target)})
	}
	return order, grid
}

func TestExecuteGridLevel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, grid := gridOrder("grid-1", "1000", 3, "1000", "1300", "1600")
	h.seedOrder(t, order, grid, nil)
	h.at(testBase.Add(time.Minute))

	// Price inside level 0's one percent band.
	h.oracle.SetRate("WETH", "USDC", d("1005"))

	result, err := h.engine.ExecuteGridLevel(ctx, "grid-1", 0, testExecutor)
	if err != nil {
		t.Fatalf("level 0 failed: %v", err)
	}
	if !result.AmountIn.Equal(d("333")) {
		t.Fatalf("expected per-level budget 333, got %s", result.AmountIn.String())
	}

	// The same rung never executes twice.
	if _, err := h.engine.ExecuteGridLevel(ctx, "grid-1", 0, testExecutor); !errors.Is(err, model.ErrLevelAlreadyExecuted) {
		t.Fatalf("expected ErrLevelAlreadyExecuted, got %v", err)
	}

	// Level 2's band is [1584, 1616]; the current price is far below it.
	if _, err := h.engine.ExecuteGridLevel(ctx, "grid-1", 2, testExecutor); !errors.Is(err, model.ErrPriceConditionNotMet) {
		t.Fatalf("expected ErrPriceConditionNotMet, got %v", err)
	}

	// Out-of-ladder levels are a caller mistake, not ineligibility.
	if _, err := h.engine.ExecuteGridLevel(ctx, "grid-1", 99, testExecutor); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestExecuteGridLastLevelSweepsRemainder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 1000 over 3 levels budgets 333 each, leaving 1 of dust for the sweep.
	order, grid := gridOrder("grid-2", "1000", 3, "1000", "1300", "1600")
	h.seedOrder(t, order, grid, nil)
	h.at(testBase.Add(time.Minute))

	h.oracle.SetRate("WETH", "USDC", d("1000"))
	if _, err := h.engine.ExecuteGridLevel(ctx, "grid-2", 0, testExecutor); err != nil {
		t.Fatalf("level 0 failed: %v", err)
	}

	h.oracle.SetRate("WETH", "USDC", d("1300"))
	if _, err := h.engine.ExecuteGridLevel(ctx, "grid-2", 1, testExecutor); err != nil {
		t.Fatalf("level 1 failed: %v", err)
	}

	h.oracle.SetRate("WETH", "USDC", d("1600"))
	result, err := h.engine.ExecuteGridLevel(ctx, "grid-2", 2, testExecutor)
	if err != nil {
		t.Fatalf("level 2 failed: %v", err)
	}
	if !result.AmountIn.Equal(d("334")) {
		t.Fatalf("last rung must sweep the remainder, got %s", result.AmountIn.String())
	}
	if !result.Completed {
		t.Fatalf("sweeping the last rung must complete the order")
	}

	reloaded, err := h.orders.FindByID(ctx, "grid-2")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if reloaded.Status != model.OrderStatusCompleted || !reloaded.RemainingAmount.IsZero() {
		t.Fatalf("expected completed with zero remaining, got %s / %s",
			reloaded.Status, reloaded.RemainingAmount.String())
	}
}

func TestExecuteGridOutOfOrderKeepsPerLevelBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, grid := gridOrder("grid-3", "1000", 3, "1000", "1300", "1600")
	h.seedOrder(t, order, grid, nil)
	h.at(testBase.Add(time.Minute))

	// The top rung fires first. It must move only its per-level budget,
	// not drain the order.
	h.oracle.SetRate("WETH", "USDC", d("1600"))
	result, err := h.engine.ExecuteGridLevel(ctx, "grid-3", 2, testExecutor)
	if err != nil {
		t.Fatalf("level 2 failed: %v", err)
	}
	if !result.AmountIn.Equal(d("333")) {
		t.Fatalf("expected per-level budget 333, got %s", result.AmountIn.String())
	}
	if result.Completed {
		t.Fatalf("one rung of three must not complete the order")
	}

	reloaded, err := h.orders.FindByID(ctx, "grid-3")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if reloaded.Status != model.OrderStatusActive || !reloaded.RemainingAmount.Equal(d("667")) {
		t.Fatalf("expected active with 667 remaining, got %s / %s",
			reloaded.Status, reloaded.RemainingAmount.String())
	}

	h.oracle.SetRate("WETH", "USDC", d("1000"))
	if _, err := h.engine.ExecuteGridLevel(ctx, "grid-3", 0, testExecutor); err != nil {
		t.Fatalf("level 0 failed: %v", err)
	}

	// The middle rung is the final outstanding one, so it takes the dust.
	h.oracle.SetRate("WETH", "USDC", d("1300"))
	result, err = h.engine.ExecuteGridLevel(ctx, "grid-3", 1, testExecutor)
	if err != nil {
		t.Fatalf("level 1 failed: %v", err)
	}
	if !result.AmountIn.Equal(d("334")) || !result.Completed {
		t.Fatalf("final rung must sweep 334 and complete, got %s completed=%v",
			result.AmountIn.String(), result.Completed)
	}
}

func TestExecuteConditional(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := &model.StrategyOrder{
		ID:              "cond-1",
		Maker:           testMaker,
		MakerAsset:      "WETH",
		TakerAsset:      "USDC",
		StrategyType:    model.StrategyConditional,
		Status:          model.OrderStatusActive,
		TotalAmount:     d("500"),
		RemainingAmount: d("500"),
		ExecutedAmount:  decimal.Zero,
		CreatedAt:       testBase,
	}
	cond := &model.ConditionalParams{
		OracleKind:   model.OracleKindStatic,
		TriggerPrice: d("1500"),
		TriggerAbove: true,
	}
	h.seedOrder(t, order, nil, cond)
	h.at(testBase.Add(time.Minute))

	h.oracle.SetRate("WETH", "USDC", d("1400"))
	if _, err := h.engine.ExecuteConditional(ctx, "cond-1", testExecutor); !errors.Is(err, model.ErrPriceConditionNotMet) {
		t.Fatalf("expected ErrPriceConditionNotMet below the trigger, got %v", err)
	}

	// The trigger boundary itself is eligible, and conditional orders
	// settle their whole remainder at once.
	h.oracle.SetRate("WETH", "USDC", d("1500"))
	result, err := h.engine.ExecuteConditional(ctx, "cond-1", testExecutor)
	if err != nil {
		t.Fatalf("triggered execution failed: %v", err)
	}
	if !result.AmountIn.Equal(d("500")) || !result.Completed {
		t.Fatalf("expected full completing settlement, got %+v", result)
	}
}

func TestExecuteConditionalDependency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	parent := twapOrder("parent-1", "200", "100", 60)
	h.seedOrder(t, parent, nil, nil)

	order := &model.StrategyOrder{
		ID:              "cond-2",
		Maker:           testMaker,
		MakerAsset:      "WETH",
		TakerAsset:      "USDC",
		StrategyType:    model.StrategyConditional,
		Status:          model.OrderStatusActive,
		TotalAmount:     d("500"),
		RemainingAmount: d("500"),
		ExecutedAmount:  decimal.Zero,
		CreatedAt:       testBase,
	}
	parentID := "parent-1"
	cond := &model.ConditionalParams{
		OracleKind:     model.OracleKindStatic,
		TriggerPrice:   d("1500"),
		TriggerAbove:   true,
		DependsOnOrder: &parentID,
	}
	h.seedOrder(t, order, nil, cond)

	h.at(testBase.Add(time.Minute))
	h.oracle.SetRate("WETH", "USDC", d("1600"))

	if _, err := h.engine.ExecuteConditional(ctx, "cond-2", testExecutor); !errors.Is(err, model.ErrDependencyNotSatisfied) {
		t.Fatalf("expected ErrDependencyNotSatisfied while the parent is active, got %v", err)
	}

	err := h.orders.Mutate(ctx, parentID, func(tx *gorm.DB, o *model.StrategyOrder) error {
		o.Status = model.OrderStatusCompleted
		return nil
	})
	if err != nil {
		t.Fatalf("failed to complete parent: %v", err)
	}

	if _, err := h.engine.ExecuteConditional(ctx, "cond-2", testExecutor); err != nil {
		t.Fatalf("execution after dependency completion failed: %v", err)
	}
}

func vestingOrder(id, beneficiary string) *model.StrategyOrder {
	start := testBase
	return &model.StrategyOrder{
		ID:              id,
		Maker:           testMaker,
		MakerAsset:      "TOKEN",
		TakerAsset:      "TOKEN",
		StrategyType:    model.StrategyVesting,
		Status:          model.OrderStatusActive,
		TotalAmount:     d("1000"),
		RemainingAmount: d("1000"),
		ExecutedAmount:  decimal.Zero,
		ClaimedAmount:   decimal.Zero,
		VestingStart:    &start,
		VestingDuration: 1000,
		CliffPeriod:     200,
		Beneficiary:     beneficiary,
		CreatedAt:       testBase,
	}
}

func TestClaimVested(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, vestingOrder("vest-1", "bene-1"), nil, nil)

	h.at(testBase.Add(600 * time.Second))

	if _, err := h.engine.ClaimVested(ctx, "vest-1", "stranger"); !errors.Is(err, model.ErrNotOrderMaker) {
		t.Fatalf("expected ErrNotOrderMaker, got %v", err)
	}

	// 400s past the cliff over an 800s post-cliff span vests half.
	claimed, err := h.engine.ClaimVested(ctx, "vest-1", testMaker)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !claimed.Equal(d("500")) {
		t.Fatalf("expected 500 claimed, got %s", claimed.String())
	}
	if got := h.ledger.Balance("bene-1", "TOKEN"); !got.Equal(d("500")) {
		t.Fatalf("beneficiary must hold 500, got %s", got.String())
	}

	// Nothing new has vested at the same instant.
	if _, err := h.engine.ClaimVested(ctx, "vest-1", testMaker); !errors.Is(err, model.ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim, got %v", err)
	}

	// The final claim at the vesting end releases the rest and completes.
	h.at(testBase.Add(1000 * time.Second))
	claimed, err = h.engine.ClaimVested(ctx, "vest-1", testMaker)
	if err != nil {
		t.Fatalf("final claim failed: %v", err)
	}
	if !claimed.Equal(d("500")) {
		t.Fatalf("expected remaining 500 claimed, got %s", claimed.String())
	}

	order, err := h.orders.FindByID(ctx, "vest-1")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if order.Status != model.OrderStatusCompleted {
		t.Fatalf("expected completed after the final claim, got %s", order.Status)
	}
	// Claims are not swap settlements; the history stays empty.
	if order.ExecutionCount != 0 {
		t.Fatalf("claims must not count as executions, got %d", order.ExecutionCount)
	}

	if _, err := h.engine.ClaimVested(ctx, "vest-1", testMaker); !errors.Is(err, model.ErrOrderCompleted) {
		t.Fatalf("expected ErrOrderCompleted, got %v", err)
	}
}

func TestClaimVestedBeforeCliff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, vestingOrder("vest-2", ""), nil, nil)
	h.at(testBase.Add(100 * time.Second))

	if _, err := h.engine.ClaimVested(ctx, "vest-2", testMaker); !errors.Is(err, model.ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim before the cliff, got %v", err)
	}
	if got := h.ledger.Balance(testMaker, "TOKEN"); !got.IsZero() {
		t.Fatalf("nothing must move before the cliff, got %s", got.String())
	}
}

func seedGasStation(t *testing.T, h *harness, id string) {
	t.Helper()

	order := &model.GasStationOrder{
		ID:          id,
		Requester:   "requester-1",
		InputAsset:  "USDC",
		InputAmount: d("1000"),
		GasUnits:    d("21000"),
		GasPrice:    d("2"),
	}
	if err := h.gasStations.Create(context.Background(), order); err != nil {
		t.Fatalf("failed to seed gas station order: %v", err)
	}
	h.ledger.SetBalance(ledger.VaultAccount, "USDC", d("1000"))
}

func TestFulfilGasStation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	seedGasStation(t, h, "gas-1")
	h.ledger.SetBalance(testExecutor, ledger.GasAsset, d("50000"))
	h.at(testBase)

	// Gas cost is 21000 * 2 = 42000; the 3000 excess comes back.
	if err := h.engine.FulfilGasStation(ctx, "gas-1", testExecutor, d("45000")); err != nil {
		t.Fatalf("fulfilment failed: %v", err)
	}

	if got := h.ledger.Balance("requester-1", ledger.GasAsset); !got.Equal(d("42000")) {
		t.Fatalf("requester must receive the gas cost, got %s", got.String())
	}
	if got := h.ledger.Balance(testExecutor, ledger.GasAsset); !got.Equal(d("8000")) {
		t.Fatalf("executor must net the gas cost only, got %s", got.String())
	}
	if got := h.ledger.Balance(testExecutor, "USDC"); !got.Equal(d("1000")) {
		t.Fatalf("executor must receive the locked input, got %s", got.String())
	}
	if got := h.ledger.Balance(ledger.VaultAccount, "USDC"); !got.IsZero() {
		t.Fatalf("vault must release the input, got %s", got.String())
	}

	order, err := h.gasStations.FindByID(ctx, "gas-1")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if !order.Fulfilled || order.FulfilledBy != testExecutor || order.FulfilledAt == nil {
		t.Fatalf("fulfilment bookkeeping missing: %+v", order)
	}

	if err := h.engine.FulfilGasStation(ctx, "gas-1", testExecutor, d("45000")); !errors.Is(err, model.ErrAlreadyFulfilled) {
		t.Fatalf("expected ErrAlreadyFulfilled, got %v", err)
	}
}

func TestFulfilGasStationInsufficientPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	seedGasStation(t, h, "gas-2")
	h.ledger.SetBalance(testExecutor, ledger.GasAsset, d("50000"))
	h.at(testBase)

	err := h.engine.FulfilGasStation(ctx, "gas-2", testExecutor, d("41999"))
	if !errors.Is(err, model.ErrInsufficientOutput) {
		t.Fatalf("expected ErrInsufficientOutput, got %v", err)
	}

	order, findErr := h.gasStations.FindByID(ctx, "gas-2")
	if findErr != nil {
		t.Fatalf("failed to reload order: %v", findErr)
	}
	if order.Fulfilled {
		t.Fatalf("a rejected fulfilment must not flip the flag")
	}
	if got := h.ledger.Balance(testExecutor, ledger.GasAsset); !got.Equal(d("50000")) {
		t.Fatalf("rejected fulfilment must not move funds, got %s", got.String())
	}
}

func TestFulfilGasStationUnderfundedExecutor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	seedGasStation(t, h, "gas-3")
	h.ledger.SetBalance(testExecutor, ledger.GasAsset, d("100"))
	h.at(testBase)

	if err := h.engine.FulfilGasStation(ctx, "gas-3", testExecutor, d("42000")); err == nil {
		t.Fatalf("expected failure when the executor cannot cover the payment")
	}

	order, err := h.gasStations.FindByID(ctx, "gas-3")
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if order.Fulfilled {
		t.Fatalf("an unfunded fulfilment must not flip the flag")
	}
}

func TestCanExecute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedOrder(t, twapOrder("can-1", "1000", "100", 60), nil, nil)
	h.oracle.SetRate("WETH", "USDC", d("2500"))

	h.at(testBase.Add(30 * time.Second))
	ok, reason := h.engine.CanExecute(ctx, "can-1")
	if ok {
		t.Fatalf("order must not be executable before the interval, reason %q", reason)
	}

	h.at(testBase.Add(60 * time.Second))
	if ok, reason := h.engine.CanExecute(ctx, "can-1"); !ok {
		t.Fatalf("order should be executable at the boundary, reason %q", reason)
	}

	if ok, _ := h.engine.CanExecute(ctx, "missing"); ok {
		t.Fatalf("unknown orders are never executable")
	}
}

func TestCanExecuteGridProbesLevels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, grid := gridOrder("can-2", "1000", 3, "1000", "1300", "1600")
	h.seedOrder(t, order, grid, nil)
	h.at(testBase.Add(time.Minute))

	h.oracle.SetRate("WETH", "USDC", d("1295"))
	if ok, reason := h.engine.CanExecute(ctx, "can-2"); !ok {
		t.Fatalf("level 1 should be in band, reason %q", reason)
	}

	h.oracle.SetRate("WETH", "USDC", d("1100"))
	if ok, _ := h.engine.CanExecute(ctx, "can-2"); ok {
		t.Fatalf("no level should be in band at 1100")
	}
}
