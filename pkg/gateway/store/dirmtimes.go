package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// TouchDirModTimes upserts the modification time for each given directory
// path of a mount. Called after every successful mutation with the full
// ancestor chain of the target.
func (s *GORMStore) TouchDirModTimes(ctx context.Context, mountID string, paths []string, at time.Time) error {
	if len(paths) == 0 {
		return nil
	}

	rows := make([]models.DirModTime, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, models.DirModTime{
			MountID:    mountID,
			Path:       p,
			ModifiedAt: at,
		})
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mount_id"}, {Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"modified_at"}),
		}).
		Create(&rows).Error
}

// GetDirModTimes returns the cached modification times for the given paths
// of a mount. Paths without a row are absent from the result.
func (s *GORMStore) GetDirModTimes(ctx context.Context, mountID string, paths []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(paths))
	if len(paths) == 0 {
		return result, nil
	}

	var rows []models.DirModTime
	err := s.db.WithContext(ctx).
		Where("mount_id = ? AND path IN ?", mountID, paths).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.Path] = row.ModifiedAt
	}
	return result, nil
}

// DeleteDirModTimes removes all cached directory times for a mount.
func (s *GORMStore) DeleteDirModTimes(ctx context.Context, mountID string) error {
	return s.db.WithContext(ctx).
		Where("mount_id = ?", mountID).
		Delete(&models.DirModTime{}).Error
}
