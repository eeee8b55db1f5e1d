package controller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strategyvault/src/ledger"
	"strategyvault/src/model"
	"strategyvault/src/repository"
	"strategyvault/src/utils"
)

const (
	MinGridLevels = 2
	MaxGridLevels = 50

	// Trailing distance bound: anything above half the price is nonsense.
	MaxTrailPctBps = 5000
)

// orderSeq disambiguates orders created within the same nanosecond.
var orderSeq atomic.Int64

// Lifecycle owns order creation and the maker-driven state transitions.
// Creation is fail-fast: every parameter is validated before any funds
// move, and the maker's deposit plus the insert happen as one unit with
// an undo on insert failure.
type Lifecycle struct {
	orders      *repository.OrderRepository
	gasStations *repository.GasStationRepository
	exceptions  *repository.ExceptionRepository
	ledger      ledger.AssetLedger

	cfg Config
	now func() time.Time
}

func NewLifecycle(
	orders *repository.OrderRepository,
	gasStations *repository.GasStationRepository,
	exceptions *repository.ExceptionRepository,
	assetLedger ledger.AssetLedger,
) *Lifecycle {
	return &Lifecycle{
		orders:      orders,
		gasStations: gasStations,
		exceptions:  exceptions,
		ledger:      assetLedger,
		cfg:         GetConfig(),
		now:         time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (l *Lifecycle) WithNow(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// CreateOrderRequest carries the shared creation parameters; the
// per-strategy creation calls add their own on top.
type CreateOrderRequest struct {
	Maker      string          `json:"maker"`
	MakerAsset string          `json:"maker_asset"`
	TakerAsset string          `json:"taker_asset"`
	Total      decimal.Decimal `json:"total_amount"`

	PriceLimit  decimal.Decimal `json:"price_limit"`
	SlippageBps int64           `json:"slippage_bps"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
}

type CreateTWAPRequest struct {
	CreateOrderRequest
	IntervalAmount   decimal.Decimal `json:"interval_amount"`
	IntervalDuration int64           `json:"interval_duration"` // seconds
}

type CreateGridRequest struct {
	CreateOrderRequest
	Levels    int64           `json:"levels"`
	LowPrice  decimal.Decimal `json:"low_price"`
	HighPrice decimal.Decimal `json:"high_price"`
}

type CreateVestingRequest struct {
	CreateOrderRequest
	VestingStart    *time.Time `json:"vesting_start,omitempty"`
	VestingDuration int64      `json:"vesting_duration"` // seconds
	CliffPeriod     int64      `json:"cliff_period"`     // seconds
	Beneficiary     string     `json:"beneficiary,omitempty"`
}

type CreateConditionalRequest struct {
	CreateOrderRequest
	OracleRef      string          `json:"oracle_ref"`
	OracleKind     string          `json:"oracle_kind"`
	TriggerPrice   decimal.Decimal `json:"trigger_price"`
	TriggerAbove   bool            `json:"trigger_above"`
	TimeGate       *time.Time      `json:"time_gate,omitempty"`
	DependsOnOrder string          `json:"depends_on_order,omitempty"`
}

type CreateTrailingStopRequest struct {
	CreateOrderRequest
	TrailPctBps int64 `json:"trail_pct_bps"`
}

type CreateGasStationRequest struct {
	Requester      string          `json:"requester"`
	InputAsset     string          `json:"input_asset"`
	InputAmount    decimal.Decimal `json:"input_amount"`
	GasUnits       decimal.Decimal `json:"gas_units"`
	GasPrice       decimal.Decimal `json:"gas_price"`
	RoutingPayload string          `json:"routing_payload,omitempty"`
}

// deriveOrderID produces the deterministic-looking order id: a hex sha256
// over the creation inputs plus a monotonic salt, so id collisions between
// distinct orders are not a practical concern.
func deriveOrderID(maker, makerAsset, takerAsset string, total decimal.Decimal) string {
	seq := orderSeq.Add(1)
	payload := fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		maker, makerAsset, takerAsset, total.String(), time.Now().UnixNano(), seq)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func (l *Lifecycle) validateCommon(req *CreateOrderRequest) error {
	req.MakerAsset = NormalizeAsset(req.MakerAsset)
	req.TakerAsset = NormalizeAsset(req.TakerAsset)

	switch {
	case req.Maker == "":
		return fmt.Errorf("%w: maker is required", model.ErrInvalidParameter)
	case req.MakerAsset == "" || req.TakerAsset == "":
		return fmt.Errorf("%w: both assets are required", model.ErrInvalidParameter)
	case !req.Total.IsPositive():
		return fmt.Errorf("%w: total amount must be positive", model.ErrInvalidParameter)
	case req.PriceLimit.IsNegative():
		return fmt.Errorf("%w: price limit cannot be negative", model.ErrInvalidParameter)
	case req.SlippageBps < 0 || req.SlippageBps >= utils.BpsDenominator:
		return fmt.Errorf("%w: slippage bps out of range", model.ErrInvalidParameter)
	case req.Deadline != nil && !req.Deadline.After(l.now()):
		return fmt.Errorf("%w: deadline is in the past", model.ErrInvalidParameter)
	}

	if req.SlippageBps == 0 {
		req.SlippageBps = l.cfg.DefaultSlippageBps
	}

	return nil
}

func (l *Lifecycle) baseOrder(req CreateOrderRequest, strategyType string) *model.StrategyOrder {
	return &model.StrategyOrder{
		ID:              deriveOrderID(req.Maker, req.MakerAsset, req.TakerAsset, req.Total),
		Maker:           req.Maker,
		MakerAsset:      req.MakerAsset,
		TakerAsset:      req.TakerAsset,
		StrategyType:    strategyType,
		Status:          model.OrderStatusActive,
		TotalAmount:     req.Total,
		RemainingAmount: req.Total,
		ExecutedAmount:  decimal.Zero,
		PriceLimit:      req.PriceLimit,
		SlippageBps:     req.SlippageBps,
		Deadline:        req.Deadline,
	}
}

// fundAndCreate locks the maker's deposit into the vault and inserts the
// order. A failed insert returns the deposit so the two stay one unit.
func (l *Lifecycle) fundAndCreate(
	ctx context.Context,
	order *model.StrategyOrder,
	grid []model.GridLevel,
	cond *model.ConditionalParams,
) error {

	if err := l.ledger.Debit(order.Maker, order.MakerAsset, order.TotalAmount); err != nil {
		return err
	}
	if err := l.ledger.Credit(ledger.VaultAccount, order.MakerAsset, order.TotalAmount); err != nil {
		_ = l.ledger.Credit(order.Maker, order.MakerAsset, order.TotalAmount)
		return err
	}

	if err := l.orders.Create(ctx, order, grid, cond); err != nil {
		_ = l.ledger.Debit(ledger.VaultAccount, order.MakerAsset, order.TotalAmount)
		_ = l.ledger.Credit(order.Maker, order.MakerAsset, order.TotalAmount)

		Capture(ctx, l.exceptions, l.cfg.ServiceName, "controller", "orders.Create",
			"error", err, map[string]interface{}{"order_id": order.ID})
		return err
	}

	logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"strategy": order.StrategyType,
		"maker":    order.Maker,
		"total":    order.TotalAmount.String(),
	}).Info("Strategy order created")

	return nil
}

// CreateTWAP opens a time-sliced order releasing IntervalAmount at most
// once per IntervalDuration.
func (l *Lifecycle) CreateTWAP(ctx context.Context, req CreateTWAPRequest) (*model.StrategyOrder, error) {
	if err := l.validateCommon(&req.CreateOrderRequest); err != nil {
		return nil, err
	}

	switch {
	case !req.IntervalAmount.IsPositive():
		return nil, fmt.Errorf("%w: interval amount must be positive", model.ErrInvalidParameter)
	case req.IntervalAmount.GreaterThan(req.Total):
		return nil, fmt.Errorf("%w: interval amount exceeds total", model.ErrInvalidParameter)
	case req.IntervalDuration <= 0:
		return nil, fmt.Errorf("%w: interval duration must be positive", model.ErrInvalidParameter)
	}

	order := l.baseOrder(req.CreateOrderRequest, model.StrategyTWAP)
	order.IntervalAmount = req.IntervalAmount
	order.IntervalDuration = req.IntervalDuration

	if err := l.fundAndCreate(ctx, order, nil, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateGrid opens a grid order. The price ladder is computed here, evenly
// spaced from low to high with truncating arithmetic, and is immutable
// afterwards. Each level is budgeted total/levels; the remainder rides on
// the last level.
func (l *Lifecycle) CreateGrid(ctx context.Context, req CreateGridRequest) (*model.StrategyOrder, error) {
	if err := l.validateCommon(&req.CreateOrderRequest); err != nil {
		return nil, err
	}

	switch {
	case req.Levels < MinGridLevels || req.Levels > MaxGridLevels:
		return nil, fmt.Errorf("%w: grid levels must be between %d and %d",
			model.ErrInvalidParameter, MinGridLevels, MaxGridLevels)
	case !req.LowPrice.IsPositive() || !req.HighPrice.IsPositive():
		return nil, fmt.Errorf("%w: grid prices must be positive", model.ErrInvalidParameter)
	case !req.LowPrice.LessThan(req.HighPrice):
		return nil, fmt.Errorf("%w: low price must be below high price", model.ErrInvalidParameter)
	}

	order := l.baseOrder(req.CreateOrderRequest, model.StrategyGrid)
	order.GridLevels = req.Levels
	order.IntervalAmount = utils.DivTrunc(req.Total, decimal.NewFromInt(req.Levels))

	span := req.HighPrice.Sub(req.LowPrice)
	steps := decimal.NewFromInt(req.Levels - 1)

	grid := make([]model.GridLevel, 0, req.Levels)
	for i := int64(0); i < req.Levels; i++ {
		target := req.LowPrice.Add(utils.DivTrunc(span.Mul(decimal.NewFromInt(i)), steps))
		grid = append(grid, model.GridLevel{
			Level:       i,
			TargetPrice: target,
		})
	}

	if err := l.fundAndCreate(ctx, order, grid, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateVesting opens a linear vesting schedule. MakerAsset doubles as the
// payout asset; the taker asset is forced to match.
func (l *Lifecycle) CreateVesting(ctx context.Context, req CreateVestingRequest) (*model.StrategyOrder, error) {
	req.TakerAsset = req.MakerAsset

	if err := l.validateCommon(&req.CreateOrderRequest); err != nil {
		return nil, err
	}

	switch {
	case req.VestingDuration <= 0:
		return nil, fmt.Errorf("%w: vesting duration must be positive", model.ErrInvalidParameter)
	case req.CliffPeriod < 0 || req.CliffPeriod >= req.VestingDuration:
		return nil, fmt.Errorf("%w: cliff must be shorter than the vesting duration", model.ErrInvalidParameter)
	}

	start := req.VestingStart
	if start == nil {
		now := l.now()
		start = &now
	}

	beneficiary := req.Beneficiary
	if beneficiary == "" {
		beneficiary = req.Maker
	}

	order := l.baseOrder(req.CreateOrderRequest, model.StrategyVesting)
	order.VestingStart = start
	order.VestingDuration = req.VestingDuration
	order.CliffPeriod = req.CliffPeriod
	order.Beneficiary = beneficiary
	order.ClaimedAmount = decimal.Zero

	if err := l.fundAndCreate(ctx, order, nil, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateConditional opens an order that settles in full once its price
// trigger, optional time gate, and optional dependency are all satisfied.
func (l *Lifecycle) CreateConditional(ctx context.Context, req CreateConditionalRequest) (*model.StrategyOrder, error) {
	if err := l.validateCommon(&req.CreateOrderRequest); err != nil {
		return nil, err
	}

	if req.OracleKind == "" {
		req.OracleKind = model.OracleKindStatic
	}

	switch {
	case !req.TriggerPrice.IsPositive():
		return nil, fmt.Errorf("%w: trigger price must be positive", model.ErrInvalidParameter)
	case req.OracleKind != model.OracleKindStatic && req.OracleKind != model.OracleKindFeed:
		return nil, fmt.Errorf("%w: unknown oracle kind %q", model.ErrInvalidParameter, req.OracleKind)
	}

	var dependsOn *string
	if req.DependsOnOrder != "" {
		if _, err := l.orders.FindByID(ctx, req.DependsOnOrder); err != nil {
			return nil, fmt.Errorf("%w: dependency order %s not found",
				model.ErrInvalidParameter, req.DependsOnOrder)
		}
		dependsOn = &req.DependsOnOrder
	}

	order := l.baseOrder(req.CreateOrderRequest, model.StrategyConditional)

	cond := &model.ConditionalParams{
		OracleRef:      req.OracleRef,
		OracleKind:     req.OracleKind,
		TriggerPrice:   req.TriggerPrice,
		TriggerAbove:   req.TriggerAbove,
		TimeGate:       req.TimeGate,
		DependsOnOrder: dependsOn,
	}

	if err := l.fundAndCreate(ctx, order, nil, cond); err != nil {
		return nil, err
	}
	order.Conditional = cond
	return order, nil
}

// CreateTrailingStop validates and records a trailing stop order. Its
// settlement path is not wired yet; the order is accepted and tracked so
// stop recomputation can run against recorded prices.
func (l *Lifecycle) CreateTrailingStop(ctx context.Context, req CreateTrailingStopRequest) (*model.StrategyOrder, error) {
	if err := l.validateCommon(&req.CreateOrderRequest); err != nil {
		return nil, err
	}

	if req.TrailPctBps <= 0 || req.TrailPctBps > MaxTrailPctBps {
		return nil, fmt.Errorf("%w: trail distance must be in (0, %d] bps",
			model.ErrInvalidParameter, MaxTrailPctBps)
	}

	order := l.baseOrder(req.CreateOrderRequest, model.StrategyTrailingStop)
	order.TrailPctBps = req.TrailPctBps

	if err := l.fundAndCreate(ctx, order, nil, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateReserved rejects the reserved strategy names with a uniform error
// so callers get a stable answer instead of a missing route.
func (l *Lifecycle) CreateReserved(strategyType string) error {
	return fmt.Errorf("%w: strategy %s is not supported yet", model.ErrInvalidParameter, strategyType)
}

// CreateGasStation opens a gasless-swap request, locking the requester's
// input tokens in the vault. The gas cost is fixed here from the supplied
// units and price.
func (l *Lifecycle) CreateGasStation(ctx context.Context, req CreateGasStationRequest) (*model.GasStationOrder, error) {
	req.InputAsset = NormalizeAsset(req.InputAsset)

	switch {
	case req.Requester == "":
		return nil, fmt.Errorf("%w: requester is required", model.ErrInvalidParameter)
	case req.InputAsset == "":
		return nil, fmt.Errorf("%w: input asset is required", model.ErrInvalidParameter)
	case !req.InputAmount.IsPositive():
		return nil, fmt.Errorf("%w: input amount must be positive", model.ErrInvalidParameter)
	case !req.GasUnits.IsPositive() || !req.GasPrice.IsPositive():
		return nil, fmt.Errorf("%w: gas units and gas price must be positive", model.ErrInvalidParameter)
	}

	order := &model.GasStationOrder{
		ID:             deriveOrderID(req.Requester, req.InputAsset, ledger.GasAsset, req.InputAmount),
		Requester:      req.Requester,
		InputAsset:     req.InputAsset,
		InputAmount:    req.InputAmount,
		GasUnits:       req.GasUnits,
		GasPrice:       req.GasPrice,
		RoutingPayload: req.RoutingPayload,
	}

	if err := l.ledger.Debit(req.Requester, req.InputAsset, req.InputAmount); err != nil {
		return nil, err
	}
	if err := l.ledger.Credit(ledger.VaultAccount, req.InputAsset, req.InputAmount); err != nil {
		_ = l.ledger.Credit(req.Requester, req.InputAsset, req.InputAmount)
		return nil, err
	}

	if err := l.gasStations.Create(ctx, order); err != nil {
		_ = l.ledger.Debit(ledger.VaultAccount, req.InputAsset, req.InputAmount)
		_ = l.ledger.Credit(req.Requester, req.InputAsset, req.InputAmount)

		Capture(ctx, l.exceptions, l.cfg.ServiceName, "controller", "gasStations.Create",
			"error", err, map[string]interface{}{"order_id": order.ID})
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"order_id":  order.ID,
		"requester": order.Requester,
		"gas_cost":  order.GasCost().String(),
	}).Info("Gas station order created")

	return order, nil
}

// Pause suspends settlement on an active order. Maker only.
func (l *Lifecycle) Pause(ctx context.Context, id, caller string) error {
	return l.orders.Mutate(ctx, id, func(tx *gorm.DB, order *model.StrategyOrder) error {
		if caller != order.Maker {
			return model.ErrNotOrderMaker
		}
		if order.IsExpired(l.now()) {
			return model.ErrOrderExpired
		}
		if order.Status != model.OrderStatusActive {
			return fmt.Errorf("%w: cannot pause a %s order", model.ErrOrderNotActive, order.Status)
		}

		order.Status = model.OrderStatusPaused
		return nil
	})
}

// Resume reactivates a paused order, unless its deadline has passed.
func (l *Lifecycle) Resume(ctx context.Context, id, caller string) error {
	return l.orders.Mutate(ctx, id, func(tx *gorm.DB, order *model.StrategyOrder) error {
		if caller != order.Maker {
			return model.ErrNotOrderMaker
		}
		if order.IsExpired(l.now()) {
			return model.ErrOrderExpired
		}
		if order.Status != model.OrderStatusPaused {
			return fmt.Errorf("%w: cannot resume a %s order", model.ErrOrderNotActive, order.Status)
		}

		order.Status = model.OrderStatusActive
		return nil
	})
}

// Cancel refunds the unexecuted remainder to the maker and closes the
// order. Works from pending, active, or paused, including past-deadline
// orders; there is no way out of completed or cancelled.
func (l *Lifecycle) Cancel(ctx context.Context, id, caller string) error {
	return l.orders.Mutate(ctx, id, func(tx *gorm.DB, order *model.StrategyOrder) error {
		if caller != order.Maker {
			return model.ErrNotOrderMaker
		}

		switch order.Status {
		case model.OrderStatusCompleted:
			return model.ErrOrderCompleted
		case model.OrderStatusCancelled:
			return fmt.Errorf("%w: order already cancelled", model.ErrOrderNotActive)
		}

		refund := order.RemainingAmount
		if refund.IsPositive() {
			if err := l.ledger.Debit(ledger.VaultAccount, order.MakerAsset, refund); err != nil {
				return err
			}
			if err := l.ledger.Credit(order.Maker, order.MakerAsset, refund); err != nil {
				return err
			}
		}

		order.RemainingAmount = decimal.Zero
		order.Status = model.OrderStatusCancelled

		logger.WithFields(map[string]interface{}{
			"order_id": order.ID,
			"refund":   refund.String(),
		}).Info("Strategy order cancelled")

		return nil
	})
}
