package models

import (
	"time"
)

// Permission is a capability flag carried by an API key.
type Permission string

const (
	// PermissionText allows text-snippet operations.
	PermissionText Permission = "text"

	// PermissionFile allows shared-file operations.
	PermissionFile Permission = "file"

	// PermissionMount allows mounted filesystem and WebDAV operations.
	PermissionMount Permission = "mount"

	// PermissionAdmin is implied for admin principals; it is never stored
	// on an API key row.
	PermissionAdmin Permission = "admin"
)

// AdminUser is the administrative principal. Admins are unrestricted over
// all mounts and manage API keys, storage configs, and mounts.
type AdminUser struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	PasswordHash string    `gorm:"not null;size:255" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for AdminUser.
func (AdminUser) TableName() string {
	return "admin_users"
}

// APIKey is a capability-scoped principal. The key value doubles as the
// Basic-auth password for WebDAV clients, so it is stored as issued.
type APIKey struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Name      string     `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Key       string     `gorm:"uniqueIndex;not null;size:64" json:"key"`
	Text      bool       `gorm:"default:false" json:"text_permission"`
	File      bool       `gorm:"default:false" json:"file_permission"`
	Mount     bool       `gorm:"default:false" json:"mount_permission"`
	BasicPath string     `gorm:"not null;default:/;size:1024" json:"basic_path"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for APIKey.
func (APIKey) TableName() string {
	return "api_keys"
}

// Expired reports whether the key has an expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Permissions returns the capability set carried by this key.
func (k *APIKey) Permissions() []Permission {
	perms := make([]Permission, 0, 3)
	if k.Text {
		perms = append(perms, PermissionText)
	}
	if k.File {
		perms = append(perms, PermissionFile)
	}
	if k.Mount {
		perms = append(perms, PermissionMount)
	}
	return perms
}

// Has reports whether the key carries the given capability.
func (k *APIKey) Has(p Permission) bool {
	switch p {
	case PermissionText:
		return k.Text
	case PermissionFile:
		return k.File
	case PermissionMount:
		return k.Mount
	default:
		return false
	}
}
