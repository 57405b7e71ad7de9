package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gatefs/gatefs/internal/logger"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/fs"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/secret"
	"github.com/gatefs/gatefs/pkg/gateway/store"
)

// adminHandler serves the /api/admin CRUD surface. Mutations invalidate the
// listing cache and the S3 client cache so changes take effect immediately.
type adminHandler struct {
	store   store.Store
	secrets *secret.Encryptor
	drivers *s3driver.Cache
	fs      *fs.FileSystem
}

// storeError maps metadata-store sentinel errors onto gateway codes.
func storeError(err error) error {
	switch {
	case errors.Is(err, models.ErrAPIKeyNotFound),
		errors.Is(err, models.ErrMountNotFound),
		errors.Is(err, models.ErrStorageConfigNotFound),
		errors.Is(err, models.ErrSharedFileNotFound),
		errors.Is(err, models.ErrAdminNotFound),
		errors.Is(err, models.ErrSettingNotFound):
		return gwerrors.Wrap(gwerrors.ErrNotFound, err.Error(), err)
	case errors.Is(err, models.ErrAPIKeyExists),
		errors.Is(err, models.ErrMountExists),
		errors.Is(err, models.ErrStorageConfigExists),
		errors.Is(err, models.ErrStorageConfigInUse),
		errors.Is(err, models.ErrAdminExists),
		errors.Is(err, models.ErrSharedFileExists):
		return gwerrors.Wrap(gwerrors.ErrConflict, err.Error(), err)
	default:
		return err
	}
}

// --- API keys ---

func (h *adminHandler) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		Error(w, storeError(err))
		return
	}
	OK(w, keys)
}

func (h *adminHandler) createKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Text      bool   `json:"text_permission"`
		File      bool   `json:"file_permission"`
		Mount     bool   `json:"mount_permission"`
		BasicPath string `json:"basic_path"`
		ExpiresIn int64  `json:"expires_in_seconds"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	key := &models.APIKey{
		Name:      req.Name,
		Key:       newAPIKeyValue(),
		Text:      req.Text,
		File:      req.File,
		Mount:     req.Mount,
		BasicPath: req.BasicPath,
	}
	if key.BasicPath == "" {
		key.BasicPath = "/"
	}
	if req.ExpiresIn > 0 {
		at := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		key.ExpiresAt = &at
	}

	if _, err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		Error(w, storeError(err))
		return
	}
	logger.Info("api key created", "name", key.Name, "basic_path", key.BasicPath)
	Created(w, key)
}

func (h *adminHandler) deleteKey(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAPIKey(r.Context(), pathParam(r, "id")); err != nil {
		Error(w, storeError(err))
		return
	}
	OK(w, map[string]bool{"deleted": true})
}

func newAPIKeyValue() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// --- Mounts ---

func (h *adminHandler) listMounts(w http.ResponseWriter, r *http.Request) {
	mounts, err := h.store.ListMounts(r.Context())
	if err != nil {
		Error(w, storeError(err))
		return
	}
	OK(w, mounts)
}

func (h *adminHandler) createMount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		MountPath       string `json:"mount_path"`
		StorageConfigID string `json:"storage_config_id"`
		WebProxy        bool   `json:"web_proxy"`
		CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.MountPath == "" || req.StorageConfigID == "" {
		BadRequest(w, "name, mount_path and storage_config_id are required")
		return
	}
	if _, err := h.store.GetStorageConfig(r.Context(), req.StorageConfigID); err != nil {
		Error(w, storeError(err))
		return
	}

	mount := &models.Mount{
		Name:            req.Name,
		MountPath:       models.NormalizeMountPath(req.MountPath),
		StorageConfigID: req.StorageConfigID,
		WebProxy:        req.WebProxy,
		CacheTTLSeconds: req.CacheTTLSeconds,
	}
	if _, err := h.store.CreateMount(r.Context(), mount); err != nil {
		Error(w, storeError(err))
		return
	}
	logger.Info("mount created", "name", mount.Name, "mount_path", mount.MountPath)
	Created(w, mount)
}

func (h *adminHandler) updateMount(w http.ResponseWriter, r *http.Request) {
	mount, err := h.store.GetMount(r.Context(), pathParam(r, "id"))
	if err != nil {
		Error(w, storeError(err))
		return
	}

	var req struct {
		Name            *string `json:"name"`
		MountPath       *string `json:"mount_path"`
		StorageConfigID *string `json:"storage_config_id"`
		WebProxy        *bool   `json:"web_proxy"`
		CacheTTLSeconds *int    `json:"cache_ttl_seconds"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name != nil {
		mount.Name = *req.Name
	}
	if req.MountPath != nil {
		mount.MountPath = models.NormalizeMountPath(*req.MountPath)
	}
	if req.StorageConfigID != nil {
		if _, err := h.store.GetStorageConfig(r.Context(), *req.StorageConfigID); err != nil {
			Error(w, storeError(err))
			return
		}
		mount.StorageConfigID = *req.StorageConfigID
	}
	if req.WebProxy != nil {
		mount.WebProxy = *req.WebProxy
	}
	if req.CacheTTLSeconds != nil {
		mount.CacheTTLSeconds = *req.CacheTTLSeconds
	}

	if err := h.store.UpdateMount(r.Context(), mount); err != nil {
		Error(w, storeError(err))
		return
	}
	h.fs.Cache().InvalidateMount(mount.ID)
	OK(w, mount)
}

func (h *adminHandler) deleteMount(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.store.DeleteMount(r.Context(), id); err != nil {
		Error(w, storeError(err))
		return
	}
	h.fs.Cache().InvalidateMount(id)
	OK(w, map[string]bool{"deleted": true})
}

// --- Storage configs ---

// redactConfig strips credential ciphertext before a config leaves the API.
// The json:"-" tags already hide the fields; clearing them here keeps a
// future tag change from leaking ciphertext.
func redactConfig(cfg *models.StorageConfig) *models.StorageConfig {
	out := *cfg
	out.AccessKeyID = ""
	out.SecretAccessKey = ""
	return &out
}

func (h *adminHandler) listStorageConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListStorageConfigs(r.Context())
	if err != nil {
		Error(w, storeError(err))
		return
	}
	redacted := make([]*models.StorageConfig, 0, len(configs))
	for _, cfg := range configs {
		redacted = append(redacted, redactConfig(cfg))
	}
	OK(w, redacted)
}

type storageConfigRequest struct {
	Name                    string `json:"name"`
	ProviderType            string `json:"provider_type"`
	Endpoint                string `json:"endpoint"`
	Region                  string `json:"region"`
	Bucket                  string `json:"bucket"`
	AccessKeyID             string `json:"access_key_id"`
	SecretAccessKey         string `json:"secret_access_key"`
	PathStyle               bool   `json:"path_style"`
	RootPrefix              string `json:"root_prefix"`
	DefaultSignedTTLSeconds int    `json:"default_signed_ttl_seconds"`
	TotalCapacityBytes      *int64 `json:"total_capacity_bytes"`
	CacheTTLSeconds         int    `json:"cache_ttl_seconds"`
}

func (h *adminHandler) createStorageConfig(w http.ResponseWriter, r *http.Request) {
	var req storageConfigRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Bucket == "" {
		BadRequest(w, "name and bucket are required")
		return
	}
	if req.AccessKeyID == "" || req.SecretAccessKey == "" {
		BadRequest(w, "access_key_id and secret_access_key are required")
		return
	}

	encKey, err := h.secrets.Encrypt(req.AccessKeyID)
	if err != nil {
		Error(w, err)
		return
	}
	encSecret, err := h.secrets.Encrypt(req.SecretAccessKey)
	if err != nil {
		Error(w, err)
		return
	}

	cfg := &models.StorageConfig{
		Name:                    req.Name,
		ProviderType:            string(models.ParseProviderType(req.ProviderType)),
		Endpoint:                req.Endpoint,
		Region:                  req.Region,
		Bucket:                  req.Bucket,
		AccessKeyID:             encKey,
		SecretAccessKey:         encSecret,
		PathStyle:               req.PathStyle,
		RootPrefix:              req.RootPrefix,
		DefaultSignedTTLSeconds: req.DefaultSignedTTLSeconds,
		TotalCapacityBytes:      req.TotalCapacityBytes,
		CacheTTLSeconds:         req.CacheTTLSeconds,
	}
	if _, err := h.store.CreateStorageConfig(r.Context(), cfg); err != nil {
		Error(w, storeError(err))
		return
	}
	logger.Info("storage config created", "name", cfg.Name, "bucket", cfg.Bucket)
	Created(w, redactConfig(cfg))
}

func (h *adminHandler) updateStorageConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.GetStorageConfig(r.Context(), pathParam(r, "id"))
	if err != nil {
		Error(w, storeError(err))
		return
	}

	var req storageConfigRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.ProviderType != "" {
		cfg.ProviderType = string(models.ParseProviderType(req.ProviderType))
	}
	if req.Endpoint != "" {
		cfg.Endpoint = req.Endpoint
	}
	if req.Region != "" {
		cfg.Region = req.Region
	}
	if req.Bucket != "" {
		cfg.Bucket = req.Bucket
	}
	// Empty credential fields mean "keep the stored ones".
	if req.AccessKeyID != "" {
		enc, err := h.secrets.Encrypt(req.AccessKeyID)
		if err != nil {
			Error(w, err)
			return
		}
		cfg.AccessKeyID = enc
	}
	if req.SecretAccessKey != "" {
		enc, err := h.secrets.Encrypt(req.SecretAccessKey)
		if err != nil {
			Error(w, err)
			return
		}
		cfg.SecretAccessKey = enc
	}
	cfg.PathStyle = req.PathStyle
	if req.RootPrefix != "" {
		cfg.RootPrefix = req.RootPrefix
	}
	if req.DefaultSignedTTLSeconds > 0 {
		cfg.DefaultSignedTTLSeconds = req.DefaultSignedTTLSeconds
	}
	if req.TotalCapacityBytes != nil {
		cfg.TotalCapacityBytes = req.TotalCapacityBytes
	}
	if req.CacheTTLSeconds > 0 {
		cfg.CacheTTLSeconds = req.CacheTTLSeconds
	}

	if err := h.store.UpdateStorageConfig(r.Context(), cfg); err != nil {
		Error(w, storeError(err))
		return
	}
	h.drivers.Invalidate(cfg.ID)
	h.fs.Cache().InvalidateAll()
	OK(w, redactConfig(cfg))
}

func (h *adminHandler) deleteStorageConfig(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.store.DeleteStorageConfig(r.Context(), id); err != nil {
		Error(w, storeError(err))
		return
	}
	h.drivers.Invalidate(id)
	OK(w, map[string]bool{"deleted": true})
}

// --- Settings ---

func (h *adminHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	mode, threshold := h.fs.UploadSettings(r.Context())
	OK(w, map[string]any{
		models.SettingWebDAVUploadMode:     mode,
		models.SettingDirectThresholdBytes: threshold,
	})
}

func (h *adminHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UploadMode           *string `json:"webdav_upload_mode"`
		DirectThresholdBytes *int64  `json:"direct_threshold_bytes"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.UploadMode != nil {
		mode := *req.UploadMode
		if mode != models.UploadModeDirect && mode != models.UploadModeMultipart {
			BadRequest(w, "webdav_upload_mode must be direct or multipart")
			return
		}
		if err := h.store.SetSetting(r.Context(), models.SettingWebDAVUploadMode, mode); err != nil {
			Error(w, storeError(err))
			return
		}
	}
	if req.DirectThresholdBytes != nil {
		if *req.DirectThresholdBytes <= 0 {
			BadRequest(w, "direct_threshold_bytes must be positive")
			return
		}
		value := strconv.FormatInt(*req.DirectThresholdBytes, 10)
		if err := h.store.SetSetting(r.Context(), models.SettingDirectThresholdBytes, value); err != nil {
			Error(w, storeError(err))
			return
		}
	}

	h.getSettings(w, r)
}
