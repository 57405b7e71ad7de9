// Package models defines the persistent entities of the gatefs metadata store:
// API keys, storage configurations, mounts, shared files, settings, and the
// cached directory modification-time table.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&AdminUser{},
		&APIKey{},
		&StorageConfig{},
		&Mount{},
		&SharedFile{},
		&Setting{},
		&DirModTime{},
	}
}
