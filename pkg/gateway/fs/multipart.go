package fs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// MultipartSession is returned by InitMultipart. The server keeps no session
// state; the client echoes uploadId and key on every subsequent call.
type MultipartSession struct {
	UploadID            string `json:"uploadId"`
	Key                 string `json:"key"`
	RecommendedPartSize int64  `json:"recommendedPartSize"`
}

// InitMultipart starts a client-driven multipart upload.
func (f *FileSystem) InitMultipart(ctx context.Context, auth *authz.AuthResult, path, contentType string, fileSize int64) (*MultipartSession, error) {
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

	if err := f.checkCapacity(ctx, driver, &res.Mount.StorageConfig, fileSize); err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = s3driver.ContentTypeFor(vpath.Base(path), nil, true)
	}
	uploadID, err := driver.CreateMultipart(ctx, res.ObjectKey, contentType)
	if err != nil {
		return nil, err
	}

	return &MultipartSession{
		UploadID:            uploadID,
		Key:                 res.ObjectKey,
		RecommendedPartSize: s3driver.MinPartSize,
	}, nil
}

// resolveMultipartTarget re-resolves path and verifies the client-echoed key
// matches, so a tampered key cannot escape the principal's prefix.
func (f *FileSystem) resolveMultipartTarget(ctx context.Context, auth *authz.AuthResult, path, key string) (*vpath.Resolved, ObjectStore, error) {
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return nil, nil, err
	}
	if key != res.ObjectKey {
		return nil, nil, gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "object key does not match path", path)
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return nil, nil, err
	}
	return res, driver, nil
}

// UploadMultipartPart forwards one raw part body to the object store.
func (f *FileSystem) UploadMultipartPart(ctx context.Context, auth *authz.AuthResult, path, key, uploadID string, partNumber int32, data []byte) (string, error) {
	_, driver, err := f.resolveMultipartTarget(ctx, auth, path, key)
	if err != nil {
		return "", err
	}
	if partNumber < 1 {
		return "", gwerrors.New(gwerrors.ErrInvalidPath, "part numbers start at 1")
	}
	return driver.UploadPart(ctx, key, uploadID, partNumber, data)
}

// CompleteMultipart commits the upload. Capacity is re-checked against the
// total of the submitted parts before the commit; an oversized upload is
// aborted and the object never becomes visible.
func (f *FileSystem) CompleteMultipart(ctx context.Context, auth *authz.AuthResult, path, key, uploadID string, parts []s3driver.CompletedPart) (*FileRecord, error) {
	res, driver, err := f.resolveMultipartTarget(ctx, auth, path, key)
	if err != nil {
		return nil, err
	}

	etag, err := driver.CompleteMultipart(ctx, key, uploadID, parts)
	if err != nil {
		driver.AbortMultipart(ctx, key, uploadID)
		return nil, err
	}

	info, err := driver.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := f.enforceCapacityAfterCommit(ctx, driver, res); err != nil {
		return nil, err
	}

	f.commitMutation(ctx, res.Mount.ID, res.SubPath)
	record := &FileRecord{
		ObjectKey: key,
		ETag:      etag,
		Size:      info.Size,
		Mimetype:  info.ContentType,
	}
	record.Slug = f.recordSharedFile(ctx, auth, res, record, vpath.Base(path))
	return record, nil
}

// enforceCapacityAfterCommit deletes a just-committed object that pushed the
// bucket over its capacity limit. Usage includes the new object, so the check
// is against the limit itself.
func (f *FileSystem) enforceCapacityAfterCommit(ctx context.Context, driver ObjectStore, res *vpath.Resolved) error {
	cfg := &res.Mount.StorageConfig
	if cfg.TotalCapacityBytes == nil || *cfg.TotalCapacityBytes <= 0 {
		return nil
	}
	usage, err := driver.BucketUsage(ctx, cfg.NormalizedRootPrefix())
	if err != nil {
		return err
	}
	if usage <= *cfg.TotalCapacityBytes {
		return nil
	}
	if err := driver.Delete(ctx, res.ObjectKey); err != nil {
		logger.Error("failed to delete over-capacity object", "key", res.ObjectKey, "error", err)
	}
	return gwerrors.New(gwerrors.ErrCapacityExhausted, "storage capacity exceeded")
}

// AbortMultipart releases the upload. Abort is always acknowledged, even when
// the object store reports a failure.
func (f *FileSystem) AbortMultipart(ctx context.Context, auth *authz.AuthResult, path, key, uploadID string) error {
	_, driver, err := f.resolveMultipartTarget(ctx, auth, path, key)
	if err != nil {
		return err
	}
	driver.AbortMultipart(ctx, key, uploadID)
	return nil
}

// PresignedUpload is returned by PresignPut.
type PresignedUpload struct {
	PresignedURL string    `json:"presignedUrl"`
	ObjectKey    string    `json:"objectKey"`
	FileID       string    `json:"fileId"`
	ContentType  string    `json:"contentType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// PresignPut signs a PUT URL for a client-direct upload. The content type is
// inferred from the filename, never trusted from the client.
func (f *FileSystem) PresignPut(ctx context.Context, auth *authz.AuthResult, dirPath, filename string) (*PresignedUpload, error) {
	if !vpath.IsDir(dirPath) {
		dirPath += "/"
	}
	target := vpath.Join(dirPath, filename)
	res, err := f.resolve(ctx, auth, target, models.PermissionFile)
	if err != nil {
		return nil, err
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return nil, err
	}

	contentType := s3driver.ContentTypeFor(filename, nil, true)
	ttl := res.Mount.StorageConfig.SignedTTL()
	url, err := driver.PresignPut(ctx, res.ObjectKey, contentType, ttl)
	if err != nil {
		return nil, err
	}

	return &PresignedUpload{
		PresignedURL: url,
		ObjectKey:    res.ObjectKey,
		FileID:       uuid.NewString(),
		ContentType:  contentType,
		ExpiresAt:    f.now().Add(ttl),
	}, nil
}

// PresignCommitRequest carries the client's report of a completed
// presigned upload.
type PresignCommitRequest struct {
	FileID     string
	ObjectKey  string
	TargetPath string
	ETag       string
	FileSize   int64
}

// PresignCommit records a client-direct upload in the shared-file table.
// A missing etag is accepted: some S3-compatible services strip it from CORS
// responses.
func (f *FileSystem) PresignCommit(ctx context.Context, auth *authz.AuthResult, req PresignCommitRequest) (*FileRecord, error) {
	res, err := f.resolve(ctx, auth, req.TargetPath, models.PermissionFile)
	if err != nil {
		return nil, err
	}
	if req.ObjectKey != res.ObjectKey {
		return nil, gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "object key does not match path", req.TargetPath)
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return nil, err
	}

	// The object must exist before we record it.
	info, err := driver.Stat(ctx, req.ObjectKey)
	if err != nil {
		return nil, err
	}
	if req.ETag == "" {
		logger.Warn("presign commit without etag", "object_key", req.ObjectKey)
		req.ETag = info.ETag
	}

	f.commitMutation(ctx, res.Mount.ID, res.SubPath)
	record := &FileRecord{
		ObjectKey: req.ObjectKey,
		ETag:      req.ETag,
		Size:      info.Size,
		Mimetype:  info.ContentType,
	}
	record.Slug = f.recordSharedFile(ctx, auth, res, record, vpath.Base(req.TargetPath))
	return record, nil
}
