package models

import (
	"strings"
	"time"
)

// Mount binds a StorageConfig to a virtual directory. Mount paths are
// absolute, normalised with a single leading slash and no trailing slash
// (except the root mount "/").
type Mount struct {
	ID              string `gorm:"primaryKey;size:36" json:"id"`
	Name            string `gorm:"uniqueIndex;not null;size:255" json:"name"`
	MountPath       string `gorm:"uniqueIndex;not null;size:1024" json:"mount_path"`
	StorageConfigID string `gorm:"not null;size:36;index" json:"storage_config_id"`

	// WebProxy routes downloads and previews through this service when true;
	// otherwise clients are redirected to presigned URLs.
	WebProxy bool `gorm:"default:false" json:"web_proxy"`

	// CacheTTLSeconds overrides the storage default; 0 disables caching.
	CacheTTLSeconds int `gorm:"default:0" json:"cache_ttl_seconds"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	StorageConfig StorageConfig `gorm:"foreignKey:StorageConfigID" json:"storage_config,omitempty"`
}

// TableName returns the table name for Mount.
func (Mount) TableName() string {
	return "mounts"
}

// NormalizeMountPath canonicalises a mount path: single leading slash,
// no duplicate or trailing slashes. Empty input becomes "/".
func NormalizeMountPath(p string) string {
	segs := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

// EffectiveCacheTTL resolves the listing cache TTL for this mount against
// its storage config: max of the two, where the mount's 0 disables caching
// outright only when the storage default is also 0.
func (m *Mount) EffectiveCacheTTL(sc *StorageConfig) time.Duration {
	ttl := m.CacheTTLSeconds
	if sc != nil && sc.CacheTTLSeconds > ttl {
		ttl = sc.CacheTTLSeconds
	}
	if ttl <= 0 {
		return 0
	}
	return time.Duration(ttl) * time.Second
}
