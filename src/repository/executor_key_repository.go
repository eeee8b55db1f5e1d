package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strategyvault/src/database"
	"strategyvault/src/model"
)

// ExecutorKeyRepository handles persistence of settlement principals and
// their API key hashes.
type ExecutorKeyRepository struct {
	db *gorm.DB
}

// NewExecutorKeyRepository creates a new repository instance using the main read/write database.
func NewExecutorKeyRepository() *ExecutorKeyRepository {
	return &ExecutorKeyRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExecutorKeyRepository) WithDB(db *gorm.DB) *ExecutorKeyRepository {
	return &ExecutorKeyRepository{db: db}
}

// Upsert creates or replaces the key record for an address.
func (r *ExecutorKeyRepository) Upsert(
	ctx context.Context,
	key *model.ExecutorKey,
) error {

	existing, err := r.FindByAddress(ctx, key.Address)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}

	if existing != nil {
		key.ID = existing.ID
	}

	if err := r.db.WithContext(ctx).Save(key).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "ExecutorKeyRepository",
			"op":      "Upsert",
			"address": key.Address,
		}).WithError(err).Error("Failed to upsert executor key")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "ExecutorKeyRepository",
		"op":      "Upsert",
		"address": key.Address,
		"role":    key.Role,
	}).Info("Executor key stored")

	return nil
}

// FindByAddress fetches the key record for an address. Returns
// model.ErrNotFound if no key was issued.
func (r *ExecutorKeyRepository) FindByAddress(
	ctx context.Context,
	address string,
) (*model.ExecutorKey, error) {

	var key model.ExecutorKey

	err := r.db.WithContext(ctx).
		Where("address = ?", address).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &key, nil
}

// FindActive lists every active principal, used to seed the in-process
// access control state at startup.
func (r *ExecutorKeyRepository) FindActive(
	ctx context.Context,
) ([]model.ExecutorKey, error) {

	var keys []model.ExecutorKey

	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&keys).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutorKeyRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to list active executor keys")

		return nil, err
	}

	return keys, nil
}

// SetActive toggles a principal without deleting its audit trail.
func (r *ExecutorKeyRepository) SetActive(
	ctx context.Context,
	address string,
	active bool,
) error {

	result := r.db.WithContext(ctx).
		Model(&model.ExecutorKey{}).
		Where("address = ?", address).
		Update("active", active)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}

	return nil
}
