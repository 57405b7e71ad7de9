package fs

import (
	"bytes"
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// DefaultQueueDepth bounds how many 5 MiB parts may be resident at once
// during a streaming upload.
const DefaultQueueDepth = 2

const maxQueueDepth = 3

// StreamOptions parameterise StreamUpload.
type StreamOptions struct {
	// ContentType overrides filename-based inference when non-empty.
	ContentType string

	// ContentLength is the declared body size, or -1 when unknown
	// (chunked encoding). Known sizes are checked against capacity before
	// the first byte is read and against the actual byte count after.
	ContentLength int64

	// QueueDepth bounds resident parts; 0 means DefaultQueueDepth.
	QueueDepth int
}

type streamPart struct {
	number int32
	data   []byte
}

// StreamUpload consumes body as a stream and writes it as a multipart upload
// with bounded memory: at most queueDepth parts of 5 MiB are resident. A
// body that ends at zero bytes falls back to a single empty PutObject, since
// object stores reject zero-part multipart completes. On any failure or
// cancellation the multipart upload is aborted.
func (f *FileSystem) StreamUpload(ctx context.Context, auth *authz.AuthResult, path string, body io.Reader, opts StreamOptions) (*FileRecord, error) {
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

	if opts.ContentLength >= 0 {
		if err := f.checkCapacity(ctx, driver, &res.Mount.StorageConfig, opts.ContentLength); err != nil {
			return nil, err
		}
	}

	filename := vpath.Base(path)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = s3driver.ContentTypeFor(filename, nil, true)
	}

	record, err := f.streamParts(ctx, driver, res.ObjectKey, body, contentType, opts)
	if err != nil {
		return nil, err
	}
	if opts.ContentLength >= 0 && record.Size != opts.ContentLength {
		// The object is already committed; remove it rather than leave a
		// truncated body behind.
		if delErr := driver.Delete(ctx, res.ObjectKey); delErr != nil {
			logger.Error("failed to delete size-mismatched object", "key", res.ObjectKey, "error", delErr)
		}
		return nil, gwerrors.NewWithPath(gwerrors.ErrSizeMismatch, "body shorter than declared content length", path)
	}

	f.commitMutation(ctx, res.Mount.ID, res.SubPath)
	record.Mimetype = contentType
	record.Slug = f.recordSharedFile(ctx, auth, res, record, filename)
	return record, nil
}

func (f *FileSystem) streamParts(ctx context.Context, driver ObjectStore, key string, body io.Reader, contentType string, opts StreamOptions) (*FileRecord, error) {
	queueDepth := opts.QueueDepth
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if queueDepth > maxQueueDepth {
		queueDepth = maxQueueDepth
	}

	// First part is read before opening the multipart session so that an
	// empty body never creates one.
	first := make([]byte, s3driver.MinPartSize)
	n, readErr := io.ReadFull(body, first)
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return nil, readErr
	}
	if n == 0 {
		etag, err := driver.Put(ctx, key, bytes.NewReader(nil), contentType)
		if err != nil {
			return nil, err
		}
		return &FileRecord{ObjectKey: key, ETag: etag, Size: 0}, nil
	}

	uploadID, err := driver.CreateMultipart(ctx, key, contentType)
	if err != nil {
		return nil, err
	}

	group, gctx := errgroup.WithContext(ctx)
	parts := make(chan streamPart, queueDepth)

	var mu sync.Mutex
	var completed []s3driver.CompletedPart
	var total int64

	for i := 0; i < queueDepth; i++ {
		group.Go(func() error {
			for part := range parts {
				etag, err := driver.UploadPart(gctx, key, uploadID, part.number, part.data)
				if err != nil {
					return err
				}
				mu.Lock()
				completed = append(completed, s3driver.CompletedPart{PartNumber: part.number, ETag: etag})
				total += int64(len(part.data))
				mu.Unlock()
			}
			return nil
		})
	}

	group.Go(func() error {
		defer close(parts)

		number := int32(1)
		buf := first[:n]
		for {
			select {
			case parts <- streamPart{number: number, data: buf}:
			case <-gctx.Done():
				return gctx.Err()
			}
			number++

			next := make([]byte, s3driver.MinPartSize)
			read, err := io.ReadFull(body, next)
			if err == io.EOF {
				return nil
			}
			if err != nil && err != io.ErrUnexpectedEOF {
				return err
			}
			if read == 0 {
				return nil
			}
			buf = next[:read]
		}
	})

	if err := group.Wait(); err != nil {
		driver.AbortMultipart(context.WithoutCancel(ctx), key, uploadID)
		return nil, err
	}

	etag, err := driver.CompleteMultipart(ctx, key, uploadID, completed)
	if err != nil {
		driver.AbortMultipart(context.WithoutCancel(ctx), key, uploadID)
		return nil, err
	}
	return &FileRecord{ObjectKey: key, ETag: etag, Size: total}, nil
}

// DirectUpload buffers an entire body of known size and writes it with one
// PutObject. Used when the server is configured with uploadMode=direct and
// the declared length is at or under the threshold, and by the JSON upload
// endpoint when the caller opts out of multipart.
func (f *FileSystem) DirectUpload(ctx context.Context, auth *authz.AuthResult, path string, body io.Reader, contentLength int64) (*FileRecord, error) {
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
	if err := f.checkCapacity(ctx, driver, &res.Mount.StorageConfig, contentLength); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(body, contentLength))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != contentLength {
		return nil, gwerrors.NewWithPath(gwerrors.ErrSizeMismatch, "body shorter than declared content length", path)
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
		Size:      contentLength,
		Mimetype:  contentType,
	}
	record.Slug = f.recordSharedFile(ctx, auth, res, record, filename)
	return record, nil
}
