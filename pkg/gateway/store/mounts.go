package store

import (
	"context"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// CreateMount inserts a new mount and returns its ID. The mount path is
// normalised before insert so prefix matching is deterministic.
func (s *GORMStore) CreateMount(ctx context.Context, mount *models.Mount) (string, error) {
	mount.MountPath = models.NormalizeMountPath(mount.MountPath)

	if _, err := s.GetStorageConfig(ctx, mount.StorageConfigID); err != nil {
		return "", err
	}

	return createWithID(s.db, ctx, mount, mount.ID,
		func(m *models.Mount, id string) { m.ID = id }, models.ErrMountExists)
}

// GetMount retrieves a mount by ID with its storage config preloaded.
func (s *GORMStore) GetMount(ctx context.Context, id string) (*models.Mount, error) {
	return getByField[models.Mount](s.db, ctx, "id", id, models.ErrMountNotFound, "StorageConfig")
}

// ListMounts returns all mounts with storage configs preloaded, newest first
// so that resolver tie-breaking (most recently created wins) falls out of
// iteration order.
func (s *GORMStore) ListMounts(ctx context.Context) ([]*models.Mount, error) {
	return listAll[models.Mount](s.db, ctx, "created_at DESC", "StorageConfig")
}

// UpdateMount persists all fields of an existing mount.
func (s *GORMStore) UpdateMount(ctx context.Context, mount *models.Mount) error {
	mount.MountPath = models.NormalizeMountPath(mount.MountPath)
	return saveModel(s.db, ctx, mount, models.ErrMountExists)
}

// DeleteMount removes a mount and its cached directory modification times.
func (s *GORMStore) DeleteMount(ctx context.Context, id string) error {
	if err := deleteByField[models.Mount](s.db, ctx, "id", id, models.ErrMountNotFound); err != nil {
		return err
	}
	return s.DeleteDirModTimes(ctx, id)
}

// TouchMountLastUsed updates the last-used timestamp of a mount.
func (s *GORMStore) TouchMountLastUsed(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Mount{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}
