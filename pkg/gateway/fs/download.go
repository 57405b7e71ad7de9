package fs

import (
	"context"
	"io"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/authz"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// Download describes how a file should be delivered: streamed through the
// gateway or redirected to a presigned URL.
type Download struct {
	// Body is non-nil when the gateway proxies the bytes itself.
	Body io.ReadCloser
	Info *s3driver.ObjectInfo

	// RedirectURL is non-empty when the client should fetch from the
	// object store directly.
	RedirectURL string

	// Filename drives the Content-Disposition header on the proxy path.
	Filename string
}

// OpenFile resolves path and returns either a proxied stream (webProxy
// mounts) or a presigned redirect. rangeHeader is forwarded to the object
// store on the proxy path.
func (f *FileSystem) OpenFile(ctx context.Context, auth *authz.AuthResult, path, rangeHeader string, inline bool) (*Download, error) {
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return nil, err
	}
	if vpath.IsDir(res.SubPath) {
		return nil, gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "cannot download a directory", path)
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return nil, err
	}

	filename := vpath.Base(path)
	if res.Mount.WebProxy {
		body, info, err := driver.Open(ctx, res.ObjectKey, rangeHeader)
		if err != nil {
			return nil, err
		}
		return &Download{Body: body, Info: info, Filename: filename}, nil
	}

	url, err := f.presignDownload(ctx, driver, res.ObjectKey, filename, res.Mount.StorageConfig.SignedTTL(), inline)
	if err != nil {
		return nil, err
	}
	return &Download{RedirectURL: url, Filename: filename}, nil
}

// OpenShared resolves a shared-file slug. Slugs are public: no principal
// check applies, which is the point of the short-link feature.
func (f *FileSystem) OpenShared(ctx context.Context, slug, rangeHeader string, inline bool) (*Download, error) {
	shared, err := f.store.GetSharedFileBySlug(ctx, slug)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.ErrNotFound, "shared file not found", err)
	}
	cfg, err := f.store.GetStorageConfig(ctx, shared.StorageConfigID)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.ErrNotFound, "shared file storage missing", err)
	}
	driver, err := f.drivers.Get(ctx, cfg)
	if err != nil {
		return nil, err
	}

	proxy := true
	if shared.MountID != "" {
		if mount, err := f.store.GetMount(ctx, shared.MountID); err == nil {
			proxy = mount.WebProxy
		}
	}

	if proxy {
		body, info, err := driver.Open(ctx, shared.ObjectKey, rangeHeader)
		if err != nil {
			return nil, err
		}
		return &Download{Body: body, Info: info, Filename: shared.Filename}, nil
	}

	url, err := f.presignDownload(ctx, driver, shared.ObjectKey, shared.Filename, cfg.SignedTTL(), inline)
	if err != nil {
		return nil, err
	}
	return &Download{RedirectURL: url, Filename: shared.Filename}, nil
}

func (f *FileSystem) presignDownload(ctx context.Context, driver ObjectStore, key, filename string, ttl time.Duration, inline bool) (string, error) {
	opts := s3driver.PresignGetOptions{
		Disposition: s3driver.AttachmentDisposition(filename),
		ContentType: s3driver.ContentTypeFor(filename, nil, true),
	}
	if inline {
		opts.Disposition = s3driver.InlineDisposition(filename)
		opts.ContentType = s3driver.ContentTypeFor(filename, nil, false)
	}
	return driver.PresignGet(ctx, key, ttl, opts)
}
