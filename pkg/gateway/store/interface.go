package store

import (
	"context"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// Store is the metadata persistence interface consumed by the gateway core.
// GORMStore is the production implementation.
type Store interface {
	// Admin users
	CreateAdmin(ctx context.Context, admin *models.AdminUser) (string, error)
	GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error)

	// API keys
	CreateAPIKey(ctx context.Context, key *models.APIKey) (string, error)
	GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error)
	GetAPIKeyByName(ctx context.Context, name string) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error

	// Storage configs
	CreateStorageConfig(ctx context.Context, cfg *models.StorageConfig) (string, error)
	GetStorageConfig(ctx context.Context, id string) (*models.StorageConfig, error)
	ListStorageConfigs(ctx context.Context) ([]*models.StorageConfig, error)
	UpdateStorageConfig(ctx context.Context, cfg *models.StorageConfig) error
	DeleteStorageConfig(ctx context.Context, id string) error

	// Mounts
	CreateMount(ctx context.Context, mount *models.Mount) (string, error)
	GetMount(ctx context.Context, id string) (*models.Mount, error)
	ListMounts(ctx context.Context) ([]*models.Mount, error)
	UpdateMount(ctx context.Context, mount *models.Mount) error
	DeleteMount(ctx context.Context, id string) error
	TouchMountLastUsed(ctx context.Context, id string, at time.Time) error

	// Shared files
	CreateSharedFile(ctx context.Context, file *models.SharedFile) (string, error)
	GetSharedFileBySlug(ctx context.Context, slug string) (*models.SharedFile, error)
	GetSharedFile(ctx context.Context, id string) (*models.SharedFile, error)
	UpdateSharedFile(ctx context.Context, file *models.SharedFile) error
	DeleteSharedFile(ctx context.Context, id string) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Directory modification times
	TouchDirModTimes(ctx context.Context, mountID string, paths []string, at time.Time) error
	GetDirModTimes(ctx context.Context, mountID string, paths []string) (map[string]time.Time, error)
	DeleteDirModTimes(ctx context.Context, mountID string) error

	Ping() error
	Close() error
}

var _ Store = (*GORMStore)(nil)
