package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strategyvault/src/database"
	"strategyvault/src/model"
)

// OrderRepository is the order store: it exclusively owns strategy orders
// and their side records (execution history, grid ladder, conditional
// params). All mutation of an order goes through Mutate, which holds the
// per-id lock for the whole unit of work.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ---------------------------------------------------
// Order methods
// ---------------------------------------------------

// Create inserts a new order together with its grid ladder and conditional
// params in one transaction. A colliding derived id is a creation failure,
// never a silent overwrite.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.StrategyOrder,
	grid []model.GridLevel,
	cond *model.ConditionalParams,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
		"strategy": order.StrategyType,
		"maker":    order.Maker,
		"total":    order.TotalAmount.String(),
	}).Debug("Creating new strategy order")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		for i := range grid {
			grid[i].OrderID = order.ID
			if err := tx.Create(&grid[i]).Error; err != nil {
				return err
			}
		}

		if cond != nil {
			cond.OrderID = order.ID
			if err := tx.Create(cond).Error; err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"repo":     "OrderRepository",
				"op":       "Create",
				"order_id": order.ID,
			}).Warn("Order id collision on create")

			return model.ErrDuplicateID
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Create",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to create strategy order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Strategy order created successfully")

	return nil
}

// FindByID fetches a single order by id. Returns model.ErrNotFound if the
// order does not exist.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.StrategyOrder, error) {

	var order model.StrategyOrder

	err := r.db.WithContext(ctx).
		Preload("Conditional").
		Where("id = ?", id).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// OrderSearchOptions filters the order listing used by the query surface.
type OrderSearchOptions struct {
	Maker        string
	StrategyType *string
	Status       *string
	Limit        int
	Offset       int
}

// Search lists orders for a maker, newest first.
func (r *OrderRepository) Search(
	ctx context.Context,
	options OrderSearchOptions,
) ([]model.StrategyOrder, error) {

	query := r.db.WithContext(ctx).
		Where("maker = ?", options.Maker).
		Order("created_at DESC, id DESC")

	if options.StrategyType != nil {
		query = query.Where("strategy_type = ?", *options.StrategyType)
	}

	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}

	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var orders []model.StrategyOrder
	if err := query.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "OrderRepository",
			"op":    "Search",
			"maker": options.Maker,
		}).WithError(err).Error("Failed to search orders")

		return nil, err
	}

	return orders, nil
}

// FindActiveIDs lists ids of active orders, oldest first, for the executor
// loop to feed into batch settlement.
func (r *OrderRepository) FindActiveIDs(
	ctx context.Context,
	limit int,
) ([]string, error) {

	if limit <= 0 {
		limit = 10
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.StrategyOrder{}).
		Where("status = ?", model.OrderStatusActive).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindActiveIDs",
		}).WithError(err).Error("Failed to list active order ids")

		return nil, err
	}

	return ids, nil
}

// Mutate provides exclusive access to one order for the duration of one
// state transition. The per-id lock is held across fn, so an external
// collaborator called inside fn cannot reenter a mutation of the same
// order. fn runs inside a transaction; returning an error rolls back
// every write fn made through tx.
func (r *OrderRepository) Mutate(
	ctx context.Context,
	id string,
	fn func(tx *gorm.DB, order *model.StrategyOrder) error,
) error {

	unlock := orderLocks.Acquire(id)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.StrategyOrder

		err := tx.
			Preload("Conditional").
			Where("id = ?", id).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}

		if err := fn(tx, &order); err != nil {
			return err
		}

		return tx.Save(&order).Error
	})
}

// ---------------------------------------------------
// Execution history methods
// ---------------------------------------------------

// AppendExecution records one settlement in the append-only history.
// Must be called with the order's mutation transaction.
func AppendExecution(tx *gorm.DB, exec *model.OrderExecution) error {
	return tx.Create(exec).Error
}

// ExecutionsByOrderID returns the order's execution history, oldest first.
func (r *OrderRepository) ExecutionsByOrderID(
	ctx context.Context,
	orderID string,
) ([]model.OrderExecution, error) {

	var execs []model.OrderExecution

	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&execs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "ExecutionsByOrderID",
			"order_id": orderID,
		}).WithError(err).Error("Failed to fetch execution history")

		return nil, err
	}

	return execs, nil
}

// ---------------------------------------------------
// Grid ladder methods
// ---------------------------------------------------

// GridByOrderID returns the full price ladder for a grid order.
func (r *OrderRepository) GridByOrderID(
	ctx context.Context,
	orderID string,
) ([]model.GridLevel, error) {

	var levels []model.GridLevel

	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("level ASC").
		Find(&levels).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "GridByOrderID",
			"order_id": orderID,
		}).WithError(err).Error("Failed to fetch grid levels")

		return nil, err
	}

	return levels, nil
}

// GridLevelFor loads a single rung of the ladder inside a mutation
// transaction. Returns model.ErrNotFound for out-of-range levels.
func GridLevelFor(tx *gorm.DB, orderID string, level int64) (*model.GridLevel, error) {
	var gl model.GridLevel

	err := tx.
		Where("order_id = ? AND level = ?", orderID, level).
		First(&gl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &gl, nil
}

// MarkGridLevelExecuted flips a level's executed flag. The flag is set
// exactly once; callers check Executed before calling.
func MarkGridLevelExecuted(tx *gorm.DB, gl *model.GridLevel, at time.Time) error {
	gl.Executed = true
	gl.ExecutedAt = &at
	return tx.Save(gl).Error
}
