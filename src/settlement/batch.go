package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strategyvault/src/model"
)

// MaxBatchSize caps one batch call; larger requests are rejected outright.
const MaxBatchSize = 10

// BatchItem points at one order to settle. Level is only meaningful for
// grid orders.
type BatchItem struct {
	OrderID string `json:"order_id"`
	Level   int64  `json:"level"`
}

const (
	BatchSettled = "settled"
	BatchSkipped = "skipped"
	BatchFailed  = "failed"
)

// BatchOutcome reports what happened to one item. A skipped item was not
// attempted (wrong state to begin with); a failed one was attempted and
// errored. Neither aborts the rest of the batch.
type BatchOutcome struct {
	OrderID string            `json:"order_id"`
	Status  string            `json:"status"`
	Reason  string            `json:"reason,omitempty"`
	Result  *SettlementResult `json:"result,omitempty"`
}

// BatchSettle attempts to settle up to MaxBatchSize orders, returning a
// per-item outcome in input order. One item's failure never propagates to
// its siblings.
func (e *Engine) BatchSettle(ctx context.Context, items []BatchItem, executor string) ([]BatchOutcome, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", model.ErrInvalidParameter)
	}
	if len(items) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", model.ErrInvalidParameter, len(items), MaxBatchSize)
	}

	if err := e.gate.RequireExecutor(executor); err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	log := e.logger.WithFields(logrus.Fields{
		"batch_id": batchID,
		"executor": executor,
		"size":     len(items),
	})
	log.Info("batch settlement started")

	outcomes := make([]BatchOutcome, 0, len(items))
	for _, item := range items {
		outcomes = append(outcomes, e.settleOne(ctx, item, executor))
	}

	settled := 0
	for _, o := range outcomes {
		if o.Status == BatchSettled {
			settled++
		}
	}
	log.WithFields(logrus.Fields{"settled": settled}).Info("batch settlement finished")

	return outcomes, nil
}

func (e *Engine) settleOne(ctx context.Context, item BatchItem, executor string) BatchOutcome {
	order, err := e.orders.FindByID(ctx, item.OrderID)
	if err != nil {
		return BatchOutcome{OrderID: item.OrderID, Status: BatchFailed, Reason: err.Error()}
	}

	now := e.now()
	switch {
	case order.Status != model.OrderStatusActive:
		return BatchOutcome{OrderID: item.OrderID, Status: BatchSkipped,
			Reason: fmt.Sprintf("order is %s", order.Status)}
	case order.IsExpired(now):
		return BatchOutcome{OrderID: item.OrderID, Status: BatchSkipped, Reason: "order expired"}
	case !order.RemainingAmount.IsPositive():
		return BatchOutcome{OrderID: item.OrderID, Status: BatchSkipped, Reason: "nothing remaining"}
	}

	var result *SettlementResult

	switch order.StrategyType {
	case model.StrategyTWAP:
		result, err = e.ExecuteTWAP(ctx, item.OrderID, executor)
	case model.StrategyGrid:
		result, err = e.ExecuteGridLevel(ctx, item.OrderID, item.Level, executor)
	case model.StrategyConditional:
		result, err = e.ExecuteConditional(ctx, item.OrderID, executor)
	default:
		return BatchOutcome{OrderID: item.OrderID, Status: BatchSkipped,
			Reason: fmt.Sprintf("strategy %s is not batchable", order.StrategyType)}
	}

	if err != nil {
		// Ineligibility is routine in a sweep; only real failures are errors.
		if isIneligible(err) {
			return BatchOutcome{OrderID: item.OrderID, Status: BatchSkipped, Reason: err.Error()}
		}
		return BatchOutcome{OrderID: item.OrderID, Status: BatchFailed, Reason: err.Error()}
	}

	return BatchOutcome{OrderID: item.OrderID, Status: BatchSettled, Result: result}
}

func isIneligible(err error) bool {
	return errors.Is(err, model.ErrTooEarly) ||
		errors.Is(err, model.ErrPriceConditionNotMet) ||
		errors.Is(err, model.ErrDependencyNotSatisfied) ||
		errors.Is(err, model.ErrLevelAlreadyExecuted) ||
		errors.Is(err, model.ErrOrderNotActive) ||
		errors.Is(err, model.ErrOrderExpired)
}
