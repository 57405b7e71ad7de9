package store

import (
	"context"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// CreateSharedFile inserts a shared-file record and returns its ID.
func (s *GORMStore) CreateSharedFile(ctx context.Context, file *models.SharedFile) (string, error) {
	return createWithID(s.db, ctx, file, file.ID,
		func(f *models.SharedFile, id string) { f.ID = id }, models.ErrSharedFileExists)
}

// GetSharedFileBySlug retrieves a shared file by its public slug.
func (s *GORMStore) GetSharedFileBySlug(ctx context.Context, slug string) (*models.SharedFile, error) {
	return getByField[models.SharedFile](s.db, ctx, "slug", slug, models.ErrSharedFileNotFound)
}

// GetSharedFile retrieves a shared file by ID.
func (s *GORMStore) GetSharedFile(ctx context.Context, id string) (*models.SharedFile, error) {
	return getByField[models.SharedFile](s.db, ctx, "id", id, models.ErrSharedFileNotFound)
}

// UpdateSharedFile persists all fields of an existing shared-file record.
func (s *GORMStore) UpdateSharedFile(ctx context.Context, file *models.SharedFile) error {
	return saveModel(s.db, ctx, file, models.ErrSharedFileExists)
}

// DeleteSharedFile removes a shared-file record by ID.
func (s *GORMStore) DeleteSharedFile(ctx context.Context, id string) error {
	return deleteByField[models.SharedFile](s.db, ctx, "id", id, models.ErrSharedFileNotFound)
}
