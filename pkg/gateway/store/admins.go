package store

import (
	"context"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// CreateAdmin inserts a new admin user and returns its generated ID.
func (s *GORMStore) CreateAdmin(ctx context.Context, admin *models.AdminUser) (string, error) {
	return createWithID(s.db, ctx, admin, admin.ID,
		func(a *models.AdminUser, id string) { a.ID = id }, models.ErrAdminExists)
}

// GetAdminByUsername retrieves an admin user by username.
func (s *GORMStore) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	return getByField[models.AdminUser](s.db, ctx, "username", username, models.ErrAdminNotFound)
}
