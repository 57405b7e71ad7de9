package store

import (
	"context"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// CreateAPIKey inserts a new API key and returns its generated ID.
func (s *GORMStore) CreateAPIKey(ctx context.Context, key *models.APIKey) (string, error) {
	key.BasicPath = models.NormalizeMountPath(key.BasicPath)
	return createWithID(s.db, ctx, key, key.ID,
		func(k *models.APIKey, id string) { k.ID = id }, models.ErrAPIKeyExists)
}

// GetAPIKeyByKey retrieves an API key by its key value.
//
// Expired keys are lazily deleted: the row is removed and
// models.ErrAPIKeyExpired is returned, so evaluation and cleanup happen in
// one place without a background sweep.
func (s *GORMStore) GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error) {
	rec, err := getByField[models.APIKey](s.db, ctx, "key", key, models.ErrAPIKeyNotFound)
	if err != nil {
		return nil, err
	}

	if rec.Expired(time.Now()) {
		_ = deleteByField[models.APIKey](s.db, ctx, "id", rec.ID, models.ErrAPIKeyNotFound)
		return nil, models.ErrAPIKeyExpired
	}

	return rec, nil
}

// GetAPIKeyByName retrieves an API key by its name.
func (s *GORMStore) GetAPIKeyByName(ctx context.Context, name string) (*models.APIKey, error) {
	return getByField[models.APIKey](s.db, ctx, "name", name, models.ErrAPIKeyNotFound)
}

// ListAPIKeys returns all API keys ordered by creation time.
func (s *GORMStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	return listAll[models.APIKey](s.db, ctx, "created_at ASC")
}

// DeleteAPIKey removes an API key by ID.
func (s *GORMStore) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteByField[models.APIKey](s.db, ctx, "id", id, models.ErrAPIKeyNotFound)
}

// TouchAPIKey updates the last-used timestamp of a key.
func (s *GORMStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used", at).Error
}
