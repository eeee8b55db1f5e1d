package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"strategyvault/src/model"
	"strategyvault/src/repository"
	"strategyvault/src/settlement"
)

// StartLoop sweeps active orders into batch settlement on a fixed period.
// Every tick lists the oldest active orders, resolves the next executable
// grid level where one is needed, and hands the batch to the engine. Orders
// that are merely ineligible this tick come back as skips; the loop only
// exits on context cancellation or a fatal listing failure.
func StartLoop(ctx context.Context, orders *repository.OrderRepository, engine *settlement.Engine) error {
	config := GetConfig()

	if config.ExecutorAddress == "" {
		return errors.New("executor_address not set")
	}

	batchSize := config.BatchSize
	if batchSize <= 0 || batchSize > settlement.MaxBatchSize {
		batchSize = settlement.MaxBatchSize
	}

	ticker := time.NewTicker(config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil

		case <-ticker.C:
			logger.Info("loop tick")

			items, err := collectBatch(ctx, orders, engine, batchSize)
			if err != nil {
				logger.WithError(err).Error("Failed to list active orders, will exit here")
				return err
			}

			if len(items) == 0 {
				logger.Debug("no active orders, skipping tick")
				continue
			}

			outcomes, err := engine.BatchSettle(ctx, items, config.ExecutorAddress)
			if err != nil {
				logger.WithError(err).Error("Batch settlement rejected")
				continue
			}

			for _, outcome := range outcomes {
				if outcome.Status == settlement.BatchFailed {
					logger.WithFields(map[string]interface{}{
						"order_id": outcome.OrderID,
						"reason":   outcome.Reason,
					}).Warn("Order settlement failed")
				}
			}
		}
	}
}

// collectBatch turns the oldest active orders into batch items. Grid
// orders get the first rung currently within its price band, so a ladder
// whose lowest outstanding level is out of range does not block the ones
// that are in range; a ladder with no rung in band is left out of the
// batch entirely.
func collectBatch(ctx context.Context, orders *repository.OrderRepository, engine *settlement.Engine, limit int) ([]settlement.BatchItem, error) {
	ids, err := orders.FindActiveIDs(ctx, limit)
	if err != nil {
		return nil, err
	}

	items := make([]settlement.BatchItem, 0, len(ids))
	for _, id := range ids {
		order, err := orders.FindByID(ctx, id)
		if err != nil {
			logger.WithError(err).WithField("order_id", id).Warn("Active order vanished mid-sweep")
			continue
		}

		item := settlement.BatchItem{OrderID: id}

		if order.StrategyType == model.StrategyGrid {
			level, ok := engine.NextGridLevel(ctx, order)
			if !ok {
				continue
			}
			item.Level = level
		}

		items = append(items, item)
	}

	return items, nil
}
