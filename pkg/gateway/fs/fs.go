// Package fs is the operation surface between the HTTP/WebDAV layers and the
// object store. Every operation takes a virtual path and the caller's
// AuthResult, enforces the allowed prefix through the mount resolver, and
// keeps the directory cache and ancestor modification times coherent after
// mutations.
package fs

import (
	"context"
	"io"
	"time"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
	"github.com/gatefs/gatefs/pkg/gateway/dircache"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/store"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// ObjectStore is the driver surface the filesystem operates against.
// *s3driver.Driver satisfies it; tests substitute an in-memory fake.
type ObjectStore interface {
	Stat(ctx context.Context, key string) (*s3driver.ObjectInfo, error)
	Open(ctx context.Context, key, rangeHeader string) (io.ReadCloser, *s3driver.ObjectInfo, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	DeleteBatch(ctx context.Context, keys []string) ([]string, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	ListDir(ctx context.Context, prefix string) (*s3driver.ListResult, error)
	ListAllKeys(ctx context.Context, prefix string, fn func(s3driver.ObjectInfo) bool) error
	BucketUsage(ctx context.Context, prefix string) (int64, error)
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, data []byte) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []s3driver.CompletedPart) (string, error)
	AbortMultipart(ctx context.Context, key, uploadID string)
	PresignGet(ctx context.Context, key string, expires time.Duration, opts s3driver.PresignGetOptions) (string, error)
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// DriverSource yields the ObjectStore for a storage config.
type DriverSource interface {
	Get(ctx context.Context, cfg *models.StorageConfig) (ObjectStore, error)
}

type driverCacheSource struct {
	cache *s3driver.Cache
}

func (s driverCacheSource) Get(ctx context.Context, cfg *models.StorageConfig) (ObjectStore, error) {
	return s.cache.Get(ctx, cfg)
}

// NewDriverSource adapts an s3driver.Cache into a DriverSource.
func NewDriverSource(cache *s3driver.Cache) DriverSource {
	return driverCacheSource{cache: cache}
}

// Entry is one file or directory in a listing or stat result.
type Entry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	ETag        string    `json:"etag,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// Listing is a directory listing. Self describes the listed directory itself,
// which WebDAV PROPFIND renders as its own first response element.
type Listing struct {
	Self    Entry   `json:"self"`
	Entries []Entry `json:"entries"`
}

// FileInfo decorates an Entry with access URLs chosen per the mount's
// webProxy flag.
type FileInfo struct {
	Entry
	PreviewURL  string `json:"previewUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// FileRecord is the result of a completed upload.
type FileRecord struct {
	ObjectKey string `json:"objectKey"`
	ETag      string `json:"etag,omitempty"`
	Size      int64  `json:"size"`
	Mimetype  string `json:"mimetype,omitempty"`
	Slug      string `json:"slug,omitempty"`
}

// FileSystem implements the gateway operation surface.
type FileSystem struct {
	store    store.Store
	drivers  DriverSource
	cache    *dircache.Cache
	resolver *vpath.Resolver
	settings *settingsView
	now      func() time.Time
}

// New creates a FileSystem over the metadata store, driver source and
// directory cache.
func New(st store.Store, drivers DriverSource, cache *dircache.Cache) *FileSystem {
	return &FileSystem{
		store:    st,
		drivers:  drivers,
		cache:    cache,
		resolver: vpath.NewResolver(st),
		settings: newSettingsView(st),
		now:      time.Now,
	}
}

// Cache exposes the directory cache for admin-triggered invalidation.
func (f *FileSystem) Cache() *dircache.Cache {
	return f.cache
}

// resolve authenticates, checks the capability flag and maps the virtual path
// to a mount.
func (f *FileSystem) resolve(ctx context.Context, auth *authz.AuthResult, path string, perm models.Permission) (*vpath.Resolved, error) {
	if !auth.Authenticated {
		return nil, gwerrors.New(gwerrors.ErrUnauthorized, "authentication required")
	}
	if !auth.Can(perm) {
		return nil, gwerrors.NewWithPath(gwerrors.ErrPermissionDenied, "missing capability: "+string(perm), path)
	}
	return f.resolver.Resolve(ctx, path, auth.AllowedPrefix())
}

// driverFor returns the object store for the resolved mount.
func (f *FileSystem) driverFor(ctx context.Context, res *vpath.Resolved) (ObjectStore, error) {
	return f.drivers.Get(ctx, &res.Mount.StorageConfig)
}

// commitMutation records ancestor modification times and invalidates cached
// listings after an object-store mutation has been committed. The ordering
// matters: the mtime table is updated before cache entries are dropped, so a
// reader that sees a fresh listing also sees the fresh parent mtime.
func (f *FileSystem) commitMutation(ctx context.Context, mountID, subPath string) {
	dirs := vpath.Ancestors(subPath)
	if vpath.IsDir(subPath) {
		dirs = append(dirs, subPath)
	}
	if err := f.store.TouchDirModTimes(ctx, mountID, dirs, f.now()); err != nil {
		// Stale mtimes degrade listings but must not fail the operation.
		logger.Warn("failed to update directory modification times", "mount_id", mountID, "path", subPath, "error", err)
	}
	f.cache.Invalidate(mountID, subPath)
}

// checkCapacity rejects a write of addedBytes when the storage config has a
// capacity limit and the bucket's current usage would exceed it.
func (f *FileSystem) checkCapacity(ctx context.Context, driver ObjectStore, cfg *models.StorageConfig, addedBytes int64) error {
	if cfg.TotalCapacityBytes == nil || *cfg.TotalCapacityBytes <= 0 || addedBytes <= 0 {
		return nil
	}
	usage, err := driver.BucketUsage(ctx, cfg.NormalizedRootPrefix())
	if err != nil {
		return err
	}
	if usage+addedBytes > *cfg.TotalCapacityBytes {
		return gwerrors.New(gwerrors.ErrCapacityExhausted, "storage capacity exceeded")
	}
	return nil
}
