package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// GetSetting returns the value for a settings key.
func (s *GORMStore) GetSetting(ctx context.Context, key string) (string, error) {
	rec, err := getByField[models.Setting](s.db, ctx, "key", key, models.ErrSettingNotFound)
	if err != nil {
		return "", err
	}
	return rec.Value, nil
}

// SetSetting upserts a settings key.
func (s *GORMStore) SetSetting(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&models.Setting{Key: key, Value: value}).Error
}
