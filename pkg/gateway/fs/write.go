package fs

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// DirectUploadLimit is the body size above which Upload refuses to buffer and
// callers must use the multipart pipeline.
const DirectUploadLimit = s3driver.MinPartSize

// Mkdir creates a directory marker at path. Creating an existing directory
// succeeds idempotently.
func (f *FileSystem) Mkdir(ctx context.Context, auth *authz.AuthResult, path string) error {
	if !vpath.IsDir(path) {
		path += "/"
	}
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return err
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return err
	}

	if _, err := driver.Put(ctx, res.DirKey(), bytes.NewReader(nil), s3driver.DirectoryContentType); err != nil {
		return err
	}
	f.commitMutation(ctx, res.Mount.ID, res.SubPath)
	return nil
}

// Upload writes a small body in a single PutObject. Content type is inferred
// from the filename, never trusted from the caller. A shared-file row is
// recorded so the object is reachable through its slug.
func (f *FileSystem) Upload(ctx context.Context, auth *authz.AuthResult, path string, body io.Reader) (*FileRecord, error) {
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return nil, err
	}
	if vpath.IsDir(res.SubPath) {
		return nil, gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "upload target is a directory", path)
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(body, DirectUploadLimit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > DirectUploadLimit {
		return nil, gwerrors.NewWithPath(gwerrors.ErrPayloadTooLarge, "body exceeds direct upload limit", path)
	}

	if err := f.checkCapacity(ctx, driver, &res.Mount.StorageConfig, int64(len(data))); err != nil {
		return nil, err
	}

	filename := vpath.Base(path)
	contentType := s3driver.ContentTypeFor(filename, data, false)
	etag, err := driver.Put(ctx, res.ObjectKey, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, err
	}
	f.commitMutation(ctx, res.Mount.ID, res.SubPath)

	record := &FileRecord{
		ObjectKey: res.ObjectKey,
		ETag:      etag,
		Size:      int64(len(data)),
		Mimetype:  contentType,
	}
	record.Slug = f.recordSharedFile(ctx, auth, res, record, filename)
	return record, nil
}

// recordSharedFile writes the shared-file row for an upload. Failures are
// logged, not fatal: the object is already durable.
func (f *FileSystem) recordSharedFile(ctx context.Context, auth *authz.AuthResult, res *vpath.Resolved, record *FileRecord, filename string) string {
	shared := &models.SharedFile{
		ID:              uuid.NewString(),
		Slug:            newSlug(),
		ObjectKey:       record.ObjectKey,
		StorageConfigID: res.Mount.StorageConfigID,
		MountID:         res.Mount.ID,
		Filename:        filename,
		Size:            record.Size,
		Mimetype:        record.Mimetype,
		ETag:            record.ETag,
		CreatedBy:       auth.PrincipalID,
	}
	if _, err := f.store.CreateSharedFile(ctx, shared); err != nil {
		logger.Warn("failed to record shared file", "object_key", record.ObjectKey, "error", err)
		return ""
	}
	return shared.Slug
}

// newSlug returns a short URL-safe identifier.
func newSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// UpdateInline overwrites a text file with the given content.
func (f *FileSystem) UpdateInline(ctx context.Context, auth *authz.AuthResult, path, content string) (*FileRecord, error) {
	return f.Upload(ctx, auth, path, strings.NewReader(content))
}

// Remove deletes a file or, recursively, a directory. Mount roots and the
// virtual root are rejected; the root-marker sentinel is never deleted.
func (f *FileSystem) Remove(ctx context.Context, auth *authz.AuthResult, path string) error {
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return err
	}
	if res.SubPath == "/" {
		return gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "refusing to remove a mount root", path)
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return err
	}

	if vpath.IsDir(res.SubPath) {
		if err := f.removeTree(ctx, driver, res.ListPrefix()); err != nil {
			return err
		}
	} else {
		if _, err := driver.Stat(ctx, res.ObjectKey); err != nil {
			return err
		}
		if err := driver.Delete(ctx, res.ObjectKey); err != nil {
			return err
		}
	}

	f.commitMutation(ctx, res.Mount.ID, res.SubPath)
	return nil
}

func (f *FileSystem) removeTree(ctx context.Context, driver ObjectStore, prefix string) error {
	var keys []string
	err := driver.ListAllKeys(ctx, prefix, func(obj s3driver.ObjectInfo) bool {
		if strings.HasPrefix(obj.Key, vpath.RootMarkerKey) {
			return true
		}
		keys = append(keys, obj.Key)
		return true
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	failed, err := driver.DeleteBatch(ctx, keys)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return gwerrors.New(gwerrors.ErrUpstreamUnavailable, "some objects could not be deleted")
	}
	return nil
}

// BatchFailure reports one failed item of a batch operation.
type BatchFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// BatchResult collects per-item outcomes of a batch operation.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// BatchRemove deletes each path best-effort, never aborting on the first
// failure.
func (f *FileSystem) BatchRemove(ctx context.Context, auth *authz.AuthResult, paths []string) *BatchResult {
	result := &BatchResult{}
	for _, p := range paths {
		if err := f.Remove(ctx, auth, p); err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: p, Reason: gwerrors.Describe(err)})
			continue
		}
		result.Succeeded = append(result.Succeeded, p)
	}
	return result
}

// Rename moves a file or directory within one mount via copy-then-delete.
// The target must not exist; crossing mounts is rejected.
func (f *FileSystem) Rename(ctx context.Context, auth *authz.AuthResult, oldPath, newPath string) error {
	src, err := f.resolve(ctx, auth, oldPath, models.PermissionMount)
	if err != nil {
		return err
	}
	dst, err := f.resolve(ctx, auth, newPath, models.PermissionMount)
	if err != nil {
		return err
	}
	if src.Mount.ID != dst.Mount.ID {
		return gwerrors.NewWithPath(gwerrors.ErrCrossMountRename, "rename cannot cross mounts", newPath)
	}
	if vpath.IsDir(src.SubPath) != vpath.IsDir(dst.SubPath) {
		return gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "rename cannot change entry type", newPath)
	}
	driver, err := f.driverFor(ctx, src)
	if err != nil {
		return err
	}

	if vpath.IsDir(src.SubPath) {
		err = f.renameTree(ctx, driver, src.ListPrefix(), dst.ListPrefix())
	} else {
		err = f.renameObject(ctx, driver, src.ObjectKey, dst.ObjectKey)
	}
	if err != nil {
		return err
	}

	f.commitMutation(ctx, src.Mount.ID, src.SubPath)
	f.commitMutation(ctx, dst.Mount.ID, dst.SubPath)
	return nil
}

func (f *FileSystem) renameObject(ctx context.Context, driver ObjectStore, srcKey, dstKey string) error {
	if _, err := driver.Stat(ctx, srcKey); err != nil {
		return err
	}
	if _, err := driver.Stat(ctx, dstKey); err == nil {
		return gwerrors.NewWithPath(gwerrors.ErrConflict, "target already exists", dstKey)
	} else if !gwerrors.IsCode(err, gwerrors.ErrNotFound) {
		return err
	}

	if err := driver.Copy(ctx, srcKey, dstKey); err != nil {
		return err
	}
	// A crash here leaves the source in place, which is the safe side of a
	// non-atomic rename.
	return driver.Delete(ctx, srcKey)
}

func (f *FileSystem) renameTree(ctx context.Context, driver ObjectStore, srcPrefix, dstPrefix string) error {
	if _, err := driver.Stat(ctx, dstPrefix); err == nil {
		return gwerrors.NewWithPath(gwerrors.ErrConflict, "target already exists", dstPrefix)
	} else if !gwerrors.IsCode(err, gwerrors.ErrNotFound) {
		return err
	}

	var keys []string
	err := driver.ListAllKeys(ctx, srcPrefix, func(obj s3driver.ObjectInfo) bool {
		keys = append(keys, obj.Key)
		return true
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return gwerrors.NewWithPath(gwerrors.ErrNotFound, "source not found", srcPrefix)
	}

	for _, key := range keys {
		if err := driver.Copy(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix)); err != nil {
			return err
		}
	}
	_, err = driver.DeleteBatch(ctx, keys)
	return err
}

// CopyItem is one source/target pair of a batch copy.
type CopyItem struct {
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath"`
}

// CopyResult is the outcome of a batch copy. When the copy crosses storage
// configs the server does not stream data through itself; it flags
// RequiresClientSideCopy and echoes the item list so the caller runs
// presigned download/upload cycles.
type CopyResult struct {
	BatchResult
	RequiresClientSideCopy bool       `json:"requiresClientSideCopy,omitempty"`
	Items                  []CopyItem `json:"items,omitempty"`
}

// BatchCopy copies each item. skipExisting turns target-exists conflicts into
// silent skips.
func (f *FileSystem) BatchCopy(ctx context.Context, auth *authz.AuthResult, items []CopyItem, skipExisting bool) (*CopyResult, error) {
	result := &CopyResult{}
	for _, item := range items {
		src, err := f.resolve(ctx, auth, item.SourcePath, models.PermissionMount)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: item.SourcePath, Reason: gwerrors.Describe(err)})
			continue
		}
		dst, err := f.resolve(ctx, auth, item.TargetPath, models.PermissionMount)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: item.TargetPath, Reason: gwerrors.Describe(err)})
			continue
		}

		if src.Mount.StorageConfigID != dst.Mount.StorageConfigID {
			result.RequiresClientSideCopy = true
			result.Items = append(result.Items, item)
			continue
		}

		if err := f.copyWithin(ctx, src, dst, skipExisting); err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: item.SourcePath, Reason: gwerrors.Describe(err)})
			continue
		}
		result.Succeeded = append(result.Succeeded, item.SourcePath)
		f.commitMutation(ctx, dst.Mount.ID, dst.SubPath)
	}
	return result, nil
}

func (f *FileSystem) copyWithin(ctx context.Context, src, dst *vpath.Resolved, skipExisting bool) error {
	driver, err := f.driverFor(ctx, src)
	if err != nil {
		return err
	}

	if vpath.IsDir(src.SubPath) {
		var copyErr error
		walkErr := driver.ListAllKeys(ctx, src.ListPrefix(), func(obj s3driver.ObjectInfo) bool {
			target := dst.ListPrefix() + strings.TrimPrefix(obj.Key, src.ListPrefix())
			if copyErr = f.copyOne(ctx, driver, obj.Key, target, skipExisting); copyErr != nil {
				return false
			}
			return true
		})
		if walkErr != nil {
			return walkErr
		}
		return copyErr
	}
	return f.copyOne(ctx, driver, src.ObjectKey, dst.ObjectKey, skipExisting)
}

func (f *FileSystem) copyOne(ctx context.Context, driver ObjectStore, srcKey, dstKey string, skipExisting bool) error {
	if _, err := driver.Stat(ctx, dstKey); err == nil {
		if skipExisting {
			return nil
		}
		return gwerrors.NewWithPath(gwerrors.ErrConflict, "target already exists", dstKey)
	} else if !gwerrors.IsCode(err, gwerrors.ErrNotFound) {
		return err
	}
	return driver.Copy(ctx, srcKey, dstKey)
}
