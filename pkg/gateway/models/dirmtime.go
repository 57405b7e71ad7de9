package models

import "time"

// DirModTime caches the modification time of a virtual directory. S3 common
// prefixes carry no timestamp, so every mutation refreshes the row for each
// ancestor of the target; listings decorate directory entries from it.
type DirModTime struct {
	MountID    string    `gorm:"primaryKey;size:36" json:"mount_id"`
	Path       string    `gorm:"primaryKey;size:2048" json:"path"`
	ModifiedAt time.Time `gorm:"not null" json:"modified_at"`
}

// TableName returns the table name for DirModTime.
func (DirModTime) TableName() string {
	return "parent_dir_mtimes"
}
