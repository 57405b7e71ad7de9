package models

import "time"

// SharedFile records an uploaded object exposed through a short link.
// The gateway core writes rows on upload / presign-commit and reads them
// for the /file-view and /file-download proxy endpoints; the wider
// short-link feature (passwords, view counts) lives outside the core.
type SharedFile struct {
	ID              string `gorm:"primaryKey;size:36" json:"id"`
	Slug            string `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	ObjectKey       string `gorm:"not null;size:2048" json:"object_key"`
	StorageConfigID string `gorm:"not null;size:36;index" json:"storage_config_id"`
	MountID         string `gorm:"size:36;index" json:"mount_id,omitempty"`
	Filename        string `gorm:"not null;size:1024" json:"filename"`
	Size            int64  `gorm:"default:0" json:"size"`
	Mimetype        string `gorm:"size:255" json:"mimetype"`

	// ETag may be empty: some S3-compatible services strip it from CORS
	// responses, so presign-commit accepts a missing value.
	ETag string `gorm:"size:255" json:"etag,omitempty"`

	CreatedBy string    `gorm:"size:36;index" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for SharedFile.
func (SharedFile) TableName() string {
	return "shared_files"
}
