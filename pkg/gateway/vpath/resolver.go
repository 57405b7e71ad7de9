package vpath

import (
	"context"
	"sort"
	"strings"

	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// RootMarkerKey is the sentinel object key used when a resolution targets the
// storage root itself. It is filtered from listings and never deleted.
const RootMarkerKey = "_MARK_ROOT_DONT_DELETE_ME/"

// MountSource yields the current mount table. The metadata store implements it.
type MountSource interface {
	ListMounts(ctx context.Context) ([]*models.Mount, error)
}

// Resolved is the outcome of mapping a virtual path onto a mount.
type Resolved struct {
	// Mount is the longest-prefix mount covering the path.
	Mount *models.Mount

	// SubPath is the virtual path with the mount path stripped, always
	// starting with "/".
	SubPath string

	// ObjectKey is rootPrefix + subPath without a leading slash. Directory
	// resolutions carry a trailing "/"; the storage root resolves to
	// RootMarkerKey's prefix semantics via DirKey/Key helpers.
	ObjectKey string
}

// DirKey returns the object key for directory operations, suffixed with "/".
// An empty key (mount root with no root prefix) maps to the root marker.
func (r *Resolved) DirKey() string {
	key := strings.TrimSuffix(r.ObjectKey, "/")
	if key == "" {
		return RootMarkerKey
	}
	return key + "/"
}

// ListPrefix returns the ListObjectsV2 prefix for the resolved directory:
// like DirKey but the storage root lists everything rather than the marker.
func (r *Resolved) ListPrefix() string {
	key := strings.TrimSuffix(r.ObjectKey, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

// VirtualPath reconstructs the full virtual path the resolution came from.
func (r *Resolved) VirtualPath() string {
	return strings.TrimSuffix(r.Mount.MountPath, "/") + r.SubPath
}

// Resolver maps virtual paths to mounts and enforces allowed prefixes.
type Resolver struct {
	mounts MountSource
}

// NewResolver creates a resolver over the given mount source.
func NewResolver(mounts MountSource) *Resolver {
	return &Resolver{mounts: mounts}
}

// Resolve canonicalises virtualPath, checks it against the principal's
// allowed prefix, and finds the longest-prefix mount.
//
// Tie-breaking: the longest matching mount path wins; among equal lengths the
// most recently created mount wins, which is the store's iteration order.
func (r *Resolver) Resolve(ctx context.Context, virtualPath, allowedPrefix string) (*Resolved, error) {
	path, err := Canonicalize(virtualPath)
	if err != nil {
		return nil, err
	}

	if !HasPrefix(path, allowedPrefix) {
		return nil, gwerrors.NewWithPath(gwerrors.ErrPathForbidden, "path outside allowed prefix", path)
	}

	mounts, err := r.mounts.ListMounts(ctx)
	if err != nil {
		return nil, err
	}

	// ListMounts returns newest first; a stable sort by descending prefix
	// length keeps creation order as the tie-breaker.
	sorted := make([]*models.Mount, len(mounts))
	copy(sorted, mounts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].MountPath) > len(sorted[j].MountPath)
	})

	for _, m := range sorted {
		if HasPrefix(path, m.MountPath) {
			return newResolved(m, path), nil
		}
	}

	return nil, gwerrors.NewWithPath(gwerrors.ErrMountNotFound, "no mount covers path", path)
}

func newResolved(m *models.Mount, path string) *Resolved {
	sub := strings.TrimPrefix(path, strings.TrimSuffix(m.MountPath, "/"))
	if sub == "" {
		sub = "/"
	}

	key := m.StorageConfig.NormalizedRootPrefix() + strings.TrimPrefix(sub, "/")

	return &Resolved{
		Mount:     m,
		SubPath:   sub,
		ObjectKey: key,
	}
}
