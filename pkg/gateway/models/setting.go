package models

import "time"

// Setting is a key/value row in the settings table.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// Well-known setting keys.
const (
	// SettingWebDAVUploadMode selects the WebDAV PUT pipeline:
	// "multipart" (streaming, default) or "direct" (buffer small bodies).
	SettingWebDAVUploadMode = "webdav_upload_mode"

	// SettingDirectThresholdBytes is the Content-Length cutoff below which
	// direct mode buffers the whole body in memory.
	SettingDirectThresholdBytes = "direct_threshold_bytes"
)

// Upload mode values for SettingWebDAVUploadMode.
const (
	UploadModeDirect    = "direct"
	UploadModeMultipart = "multipart"
)
