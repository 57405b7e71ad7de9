package fs

import (
	"context"

	"github.com/gatefs/gatefs/pkg/gateway/authz"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// Usage reports the current byte usage under a storage config's root prefix,
// alongside the configured capacity (0 when uncapped). The scan walks keys
// page by page; large buckets pay a proportional listing cost.
func (f *FileSystem) Usage(ctx context.Context, auth *authz.AuthResult, storageConfigID string) (used, capacity int64, err error) {
	if !auth.Authenticated {
		return 0, 0, gwerrors.New(gwerrors.ErrUnauthorized, "authentication required")
	}
	if !auth.Can(models.PermissionMount) {
		return 0, 0, gwerrors.New(gwerrors.ErrPermissionDenied, "missing capability: mount")
	}

	cfg, err := f.store.GetStorageConfig(ctx, storageConfigID)
	if err != nil {
		return 0, 0, gwerrors.Wrap(gwerrors.ErrNotFound, "storage config not found", err)
	}
	driver, err := f.drivers.Get(ctx, cfg)
	if err != nil {
		return 0, 0, err
	}

	used, err = driver.BucketUsage(ctx, cfg.NormalizedRootPrefix())
	if err != nil {
		return 0, 0, err
	}
	if cfg.TotalCapacityBytes != nil {
		capacity = *cfg.TotalCapacityBytes
	}
	return used, capacity, nil
}

// BatchCopyCommit acknowledges client-side copies: after the caller has
// moved objects across storage backends itself with presigned transfers, this
// verifies each target exists and brings listings and mtimes up to date.
func (f *FileSystem) BatchCopyCommit(ctx context.Context, auth *authz.AuthResult, targetPaths []string) *BatchResult {
	result := &BatchResult{}
	for _, p := range targetPaths {
		res, err := f.resolve(ctx, auth, p, models.PermissionMount)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: p, Reason: gwerrors.Describe(err)})
			continue
		}
		driver, err := f.driverFor(ctx, res)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: p, Reason: gwerrors.Describe(err)})
			continue
		}
		if _, err := driver.Stat(ctx, res.ObjectKey); err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: p, Reason: gwerrors.Describe(err)})
			continue
		}
		f.commitMutation(ctx, res.Mount.ID, res.SubPath)
		result.Succeeded = append(result.Succeeded, p)
	}
	return result
}
