package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"strategyvault/src/auth"
	"strategyvault/src/controller"
	"strategyvault/src/eligibility"
	"strategyvault/src/model"
	"strategyvault/src/repository"
	"strategyvault/src/settlement"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps the domain sentinel errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, model.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrUnauthorized), errors.Is(err, model.ErrNotOrderMaker):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrDuplicateID),
		errors.Is(err, model.ErrOrderNotActive),
		errors.Is(err, model.ErrOrderExpired),
		errors.Is(err, model.ErrOrderCompleted),
		errors.Is(err, model.ErrTooEarly),
		errors.Is(err, model.ErrPriceConditionNotMet),
		errors.Is(err, model.ErrDependencyNotSatisfied),
		errors.Is(err, model.ErrLevelAlreadyExecuted),
		errors.Is(err, model.ErrAlreadyFulfilled),
		errors.Is(err, model.ErrNothingToClaim):
		status = http.StatusConflict
	case errors.Is(err, model.ErrSwapFailed),
		errors.Is(err, model.ErrSlippageExceeded),
		errors.Is(err, model.ErrInsufficientOutput):
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func principalOr401(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	principal, ok := auth.GetPrincipalFromContext(r.Context())
	if !ok || principal == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return principal, true
}

// createOrderPayload is the union of every strategy's creation fields; the
// strategy_type discriminator picks which ones matter.
type createOrderPayload struct {
	StrategyType string `json:"strategy_type"`

	MakerAsset  string          `json:"maker_asset"`
	TakerAsset  string          `json:"taker_asset"`
	Total       decimal.Decimal `json:"total_amount"`
	PriceLimit  decimal.Decimal `json:"price_limit"`
	SlippageBps int64           `json:"slippage_bps"`
	Deadline    *time.Time      `json:"deadline,omitempty"`

	IntervalAmount   decimal.Decimal `json:"interval_amount"`
	IntervalDuration int64           `json:"interval_duration"`

	Levels    int64           `json:"levels"`
	LowPrice  decimal.Decimal `json:"low_price"`
	HighPrice decimal.Decimal `json:"high_price"`

	VestingStart    *time.Time `json:"vesting_start,omitempty"`
	VestingDuration int64      `json:"vesting_duration"`
	CliffPeriod     int64      `json:"cliff_period"`
	Beneficiary     string     `json:"beneficiary,omitempty"`

	OracleRef      string          `json:"oracle_ref"`
	OracleKind     string          `json:"oracle_kind"`
	TriggerPrice   decimal.Decimal `json:"trigger_price"`
	TriggerAbove   bool            `json:"trigger_above"`
	TimeGate       *time.Time      `json:"time_gate,omitempty"`
	DependsOnOrder string          `json:"depends_on_order,omitempty"`

	TrailPctBps int64 `json:"trail_pct_bps"`
}

// CreateOrderHandler opens a strategy order for the authenticated caller.
// The maker is always the principal; there is no creating on someone
// else's behalf.
func CreateOrderHandler(lc *controller.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var payload createOrderPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		base := controller.CreateOrderRequest{
			Maker:       principal.Address,
			MakerAsset:  payload.MakerAsset,
			TakerAsset:  payload.TakerAsset,
			Total:       payload.Total,
			PriceLimit:  payload.PriceLimit,
			SlippageBps: payload.SlippageBps,
			Deadline:    payload.Deadline,
		}

		var (
			order *model.StrategyOrder
			err   error
		)

		switch payload.StrategyType {
		case model.StrategyTWAP:
			order, err = lc.CreateTWAP(r.Context(), controller.CreateTWAPRequest{
				CreateOrderRequest: base,
				IntervalAmount:     payload.IntervalAmount,
				IntervalDuration:   payload.IntervalDuration,
			})
		case model.StrategyGrid:
			order, err = lc.CreateGrid(r.Context(), controller.CreateGridRequest{
				CreateOrderRequest: base,
				Levels:             payload.Levels,
				LowPrice:           payload.LowPrice,
				HighPrice:          payload.HighPrice,
			})
		case model.StrategyVesting:
			order, err = lc.CreateVesting(r.Context(), controller.CreateVestingRequest{
				CreateOrderRequest: base,
				VestingStart:       payload.VestingStart,
				VestingDuration:    payload.VestingDuration,
				CliffPeriod:        payload.CliffPeriod,
				Beneficiary:        payload.Beneficiary,
			})
		case model.StrategyConditional:
			order, err = lc.CreateConditional(r.Context(), controller.CreateConditionalRequest{
				CreateOrderRequest: base,
				OracleRef:          payload.OracleRef,
				OracleKind:         payload.OracleKind,
				TriggerPrice:       payload.TriggerPrice,
				TriggerAbove:       payload.TriggerAbove,
				TimeGate:           payload.TimeGate,
				DependsOnOrder:     payload.DependsOnOrder,
			})
		case model.StrategyTrailingStop:
			order, err = lc.CreateTrailingStop(r.Context(), controller.CreateTrailingStopRequest{
				CreateOrderRequest: base,
				TrailPctBps:        payload.TrailPctBps,
			})
		case model.StrategyDCA, model.StrategyRebalancing:
			err = lc.CreateReserved(payload.StrategyType)
		default:
			http.Error(w, "unknown strategy type", http.StatusBadRequest)
			return
		}

		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, order)
	}
}

type createGasStationPayload struct {
	InputAsset     string          `json:"input_asset"`
	InputAmount    decimal.Decimal `json:"input_amount"`
	GasUnits       decimal.Decimal `json:"gas_units"`
	GasPrice       decimal.Decimal `json:"gas_price"`
	RoutingPayload string          `json:"routing_payload,omitempty"`
}

// CreateGasStationHandler opens a gasless-swap request for the caller.
func CreateGasStationHandler(lc *controller.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var payload createGasStationPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		order, err := lc.CreateGasStation(r.Context(), controller.CreateGasStationRequest{
			Requester:      principal.Address,
			InputAsset:     payload.InputAsset,
			InputAmount:    payload.InputAmount,
			GasUnits:       payload.GasUnits,
			GasPrice:       payload.GasPrice,
			RoutingPayload: payload.RoutingPayload,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, order)
	}
}

// ExecuteOrderHandler settles one step of the order, dispatching on its
// strategy type. Grid orders take the level from the body.
func ExecuteOrderHandler(repo *repository.OrderRepository, engine *settlement.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")

		order, err := repo.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		var payload struct {
			Level int64 `json:"level"`
		}
		if r.Body != nil && r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, "Invalid payload", http.StatusBadRequest)
				return
			}
		}

		var result *settlement.SettlementResult

		switch order.StrategyType {
		case model.StrategyTWAP:
			result, err = engine.ExecuteTWAP(r.Context(), id, principal.Address)
		case model.StrategyGrid:
			result, err = engine.ExecuteGridLevel(r.Context(), id, payload.Level, principal.Address)
		case model.StrategyConditional:
			result, err = engine.ExecuteConditional(r.Context(), id, principal.Address)
		default:
			http.Error(w, "strategy is not executable", http.StatusBadRequest)
			return
		}

		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ClaimVestedHandler releases the claimable vested amount. Maker only.
func ClaimVestedHandler(engine *settlement.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		claimed, err := engine.ClaimVested(r.Context(), chi.URLParam(r, "id"), principal.Address)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"claimed": claimed.String()})
	}
}

// FulfilGasStationHandler fronts the gas for a gasless-swap request.
func FulfilGasStationHandler(engine *settlement.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var payload struct {
			EthReceived decimal.Decimal `json:"eth_received"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		id := chi.URLParam(r, "id")
		if err := engine.FulfilGasStation(r.Context(), id, principal.Address, payload.EthReceived); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "fulfilled"})
	}
}

// BatchSettleHandler attempts up to the batch cap of settlements in one
// call, reporting a per-item outcome.
func BatchSettleHandler(engine *settlement.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var payload struct {
			Items []settlement.BatchItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		outcomes, err := engine.BatchSettle(r.Context(), payload.Items, principal.Address)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": outcomes})
	}
}

func lifecycleHandler(fn func(r *http.Request, id, caller string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		if err := fn(r, id, principal.Address); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"order_id": id})
	}
}

func PauseOrderHandler(lc *controller.Lifecycle) http.HandlerFunc {
	return lifecycleHandler(func(r *http.Request, id, caller string) error {
		return lc.Pause(r.Context(), id, caller)
	})
}

func ResumeOrderHandler(lc *controller.Lifecycle) http.HandlerFunc {
	return lifecycleHandler(func(r *http.Request, id, caller string) error {
		return lc.Resume(r.Context(), id, caller)
	})
}

func CancelOrderHandler(lc *controller.Lifecycle) http.HandlerFunc {
	return lifecycleHandler(func(r *http.Request, id, caller string) error {
		return lc.Cancel(r.Context(), id, caller)
	})
}

// orderView decorates the stored record with the derived status.
type orderView struct {
	*model.StrategyOrder
	EffectiveStatus string `json:"effective_status"`
}

// GetOrderHandler returns one order with its derived status.
func GetOrderHandler(repo *repository.OrderRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := repo.FindByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, orderView{
			StrategyOrder:   order,
			EffectiveStatus: order.EffectiveStatus(time.Now()),
		})
	}
}

// SearchOrdersHandler lists the caller's orders with pagination and
// optional strategy/status filters.
func SearchOrdersHandler(repo *repository.OrderRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var strategyType, status *string
		if v := r.URL.Query().Get("strategyType"); v != "" {
			strategyType = &v
		}
		if v := r.URL.Query().Get("status"); v != "" {
			status = &v
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsed, err := strconv.Atoi(pageParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsed
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsed, err := strconv.Atoi(sizeParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsed
		}

		orders, err := repo.Search(r.Context(), repository.OrderSearchOptions{
			Maker:        principal.Address,
			StrategyType: strategyType,
			Status:       status,
			Limit:        pageSize,
			Offset:       (page - 1) * pageSize,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		now := time.Now()
		views := make([]orderView, 0, len(orders))
		for i := range orders {
			views = append(views, orderView{
				StrategyOrder:   &orders[i],
				EffectiveStatus: orders[i].EffectiveStatus(now),
			})
		}

		writeJSON(w, http.StatusOK, views)
	}
}

// CanExecuteHandler reports execution eligibility with a reason.
func CanExecuteHandler(engine *settlement.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eligible, reason := engine.CanExecute(r.Context(), chi.URLParam(r, "id"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"eligible": eligible,
			"reason":   reason,
		})
	}
}

// VestingInfoHandler reports the vesting schedule's current state.
func VestingInfoHandler(repo *repository.OrderRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := repo.FindByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		if order.StrategyType != model.StrategyVesting {
			http.Error(w, "not a vesting order", http.StatusBadRequest)
			return
		}

		now := time.Now()
		writeJSON(w, http.StatusOK, map[string]string{
			"total":     order.TotalAmount.String(),
			"vested":    eligibility.VestedAmount(order, now).String(),
			"claimed":   order.ClaimedAmount.String(),
			"claimable": eligibility.Claimable(order, now).String(),
		})
	}
}

// GridInfoHandler returns the grid ladder with per-level state.
func GridInfoHandler(repo *repository.OrderRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		order, err := repo.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		if order.StrategyType != model.StrategyGrid {
			http.Error(w, "not a grid order", http.StatusBadRequest)
			return
		}

		levels, err := repo.GridByOrderID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, levels)
	}
}

// ExecutionsHandler returns the order's settlement history, oldest first.
func ExecutionsHandler(repo *repository.OrderRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executions, err := repo.ExecutionsByOrderID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, executions)
	}
}

// GetGasStationHandler returns one gasless-swap request.
func GetGasStationHandler(repo *repository.GasStationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := repo.FindByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}
