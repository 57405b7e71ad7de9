package models

import (
	"strings"
	"time"
)

// ProviderType identifies the flavour of S3-compatible service behind a
// StorageConfig. Provider-specific behaviour (checksums, retries, timeouts)
// is configuration-level, not interface-level.
type ProviderType string

const (
	ProviderAWS     ProviderType = "aws"
	ProviderR2      ProviderType = "r2"
	ProviderB2      ProviderType = "b2"
	ProviderGeneric ProviderType = "generic"
)

// ParseProviderType normalises a provider string, defaulting to generic.
func ParseProviderType(s string) ProviderType {
	switch ProviderType(strings.ToLower(s)) {
	case ProviderAWS:
		return ProviderAWS
	case ProviderR2:
		return ProviderR2
	case ProviderB2:
		return ProviderB2
	default:
		return ProviderGeneric
	}
}

// StorageConfig describes one S3-compatible bucket. Credentials are encrypted
// at rest with the process encryption secret; the plaintext never touches disk.
type StorageConfig struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	Name         string `gorm:"uniqueIndex;not null;size:255" json:"name"`
	ProviderType string `gorm:"not null;default:generic;size:50" json:"provider_type"`
	Endpoint     string `gorm:"size:1024" json:"endpoint"`
	Region       string `gorm:"size:255" json:"region"`
	Bucket       string `gorm:"not null;size:255" json:"bucket"`

	// AccessKeyID and SecretAccessKey hold AES-GCM ciphertext (base64).
	AccessKeyID     string `gorm:"not null;type:text" json:"-"`
	SecretAccessKey string `gorm:"not null;type:text" json:"-"`

	PathStyle bool `gorm:"default:false" json:"path_style"`

	// RootPrefix is transparently prepended to every object key.
	// Normalised to end with "/" when non-empty.
	RootPrefix string `gorm:"size:1024" json:"root_prefix"`

	// DefaultSignedTTLSeconds is the presigned URL lifetime when the mount
	// does not override it.
	DefaultSignedTTLSeconds int `gorm:"default:3600" json:"default_signed_ttl_seconds"`

	// TotalCapacityBytes caps bucket usage; nil means unlimited.
	TotalCapacityBytes *int64 `json:"total_capacity_bytes,omitempty"`

	CacheTTLSeconds int       `gorm:"default:60" json:"cache_ttl_seconds"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for StorageConfig.
func (StorageConfig) TableName() string {
	return "storage_configs"
}

// Provider returns the parsed provider type.
func (c *StorageConfig) Provider() ProviderType {
	return ParseProviderType(c.ProviderType)
}

// NormalizedRootPrefix returns the root prefix without a leading slash and
// with exactly one trailing slash when non-empty.
func (c *StorageConfig) NormalizedRootPrefix() string {
	p := strings.Trim(c.RootPrefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// SignedTTL returns the presign lifetime as a duration.
func (c *StorageConfig) SignedTTL() time.Duration {
	if c.DefaultSignedTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.DefaultSignedTTLSeconds) * time.Second
}
