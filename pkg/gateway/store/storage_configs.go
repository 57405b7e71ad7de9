package store

import (
	"context"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// CreateStorageConfig inserts a new storage config and returns its ID.
func (s *GORMStore) CreateStorageConfig(ctx context.Context, cfg *models.StorageConfig) (string, error) {
	return createWithID(s.db, ctx, cfg, cfg.ID,
		func(c *models.StorageConfig, id string) { c.ID = id }, models.ErrStorageConfigExists)
}

// GetStorageConfig retrieves a storage config by ID.
func (s *GORMStore) GetStorageConfig(ctx context.Context, id string) (*models.StorageConfig, error) {
	return getByField[models.StorageConfig](s.db, ctx, "id", id, models.ErrStorageConfigNotFound)
}

// ListStorageConfigs returns all storage configs ordered by name.
func (s *GORMStore) ListStorageConfigs(ctx context.Context) ([]*models.StorageConfig, error) {
	return listAll[models.StorageConfig](s.db, ctx, "name ASC")
}

// UpdateStorageConfig persists all fields of an existing storage config.
func (s *GORMStore) UpdateStorageConfig(ctx context.Context, cfg *models.StorageConfig) error {
	return saveModel(s.db, ctx, cfg, models.ErrStorageConfigExists)
}

// DeleteStorageConfig removes a storage config. Configs still referenced by
// a mount are refused with ErrStorageConfigInUse.
func (s *GORMStore) DeleteStorageConfig(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Mount{}).
		Where("storage_config_id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return models.ErrStorageConfigInUse
	}

	return deleteByField[models.StorageConfig](s.db, ctx, "id", id, models.ErrStorageConfigNotFound)
}
