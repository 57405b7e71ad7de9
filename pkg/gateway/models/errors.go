package models

import "errors"

// Domain errors returned by the metadata store.
var (
	ErrAdminNotFound         = errors.New("admin user not found")
	ErrAdminExists           = errors.New("admin user already exists")
	ErrAPIKeyNotFound        = errors.New("api key not found")
	ErrAPIKeyExists          = errors.New("api key already exists")
	ErrAPIKeyExpired         = errors.New("api key expired")
	ErrStorageConfigNotFound = errors.New("storage config not found")
	ErrStorageConfigExists   = errors.New("storage config already exists")
	ErrStorageConfigInUse    = errors.New("storage config is referenced by a mount")
	ErrMountNotFound         = errors.New("mount not found")
	ErrMountExists           = errors.New("mount already exists")
	ErrSharedFileNotFound    = errors.New("shared file not found")
	ErrSharedFileExists      = errors.New("shared file already exists")
	ErrSettingNotFound       = errors.New("setting not found")
)
