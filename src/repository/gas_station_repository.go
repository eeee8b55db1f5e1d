package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strategyvault/src/database"
	"strategyvault/src/model"
)

// GasStationRepository handles persistence of gasless-swap requests.
type GasStationRepository struct {
	db *gorm.DB
}

// NewGasStationRepository creates a new repository instance using the main read/write database.
func NewGasStationRepository() *GasStationRepository {
	return &GasStationRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GasStationRepository) WithDB(db *gorm.DB) *GasStationRepository {
	return &GasStationRepository{db: db}
}

// Create inserts a new gas station order.
func (r *GasStationRepository) Create(
	ctx context.Context,
	order *model.GasStationOrder,
) error {

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.ErrDuplicateID
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "GasStationRepository",
			"op":       "Create",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to create gas station order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "GasStationRepository",
		"op":        "Create",
		"order_id":  order.ID,
		"requester": order.Requester,
	}).Info("Gas station order created")

	return nil
}

// FindByID fetches a gas station order by id. Returns model.ErrNotFound if missing.
func (r *GasStationRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.GasStationOrder, error) {

	var order model.GasStationOrder

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &order, nil
}

// Mutate provides exclusive access to one gas station order for the
// duration of one transition. Shares the same keyed-lock namespace as
// strategy orders since ids never collide across the two tables.
func (r *GasStationRepository) Mutate(
	ctx context.Context,
	id string,
	fn func(tx *gorm.DB, order *model.GasStationOrder) error,
) error {

	unlock := orderLocks.Acquire(id)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.GasStationOrder

		err := tx.Where("id = ?", id).First(&order).Error
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
