package fs

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/authz"
	"github.com/gatefs/gatefs/pkg/gateway/dircache"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// List returns the directory listing at path, consulting the directory cache
// first.
func (f *FileSystem) List(ctx context.Context, auth *authz.AuthResult, path string) (*Listing, error) {
	if !vpath.IsDir(path) {
		path += "/"
	}
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return nil, err
	}

	ttl := res.Mount.EffectiveCacheTTL(&res.Mount.StorageConfig)
	key := dircache.Key{
		MountID:        res.Mount.ID,
		SubPath:        res.SubPath,
		PrincipalClass: auth.PrincipalClass(),
	}
	if cached, ok := f.cache.Get(key); ok {
		return cached.(*Listing), nil
	}

	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return nil, err
	}

	result, err := driver.ListDir(ctx, res.ListPrefix())
	if err != nil {
		return nil, err
	}

	listing, err := f.buildListing(ctx, res, path, result)
	if err != nil {
		return nil, err
	}

	f.cache.Put(key, listing, ttl)
	return listing, nil
}

func (f *FileSystem) buildListing(ctx context.Context, res *vpath.Resolved, path string, result *s3driver.ListResult) (*Listing, error) {
	listing := &Listing{
		Self: Entry{
			Name:        vpath.Base(path),
			Path:        path,
			IsDirectory: true,
		},
	}

	prefix := res.ListPrefix()
	var dirPaths []string
	for _, cp := range result.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), "/")
		if name == "" || cp == prefix+vpath.RootMarkerKey {
			continue
		}
		entryPath := path + name + "/"
		listing.Entries = append(listing.Entries, Entry{
			Name:        name,
			Path:        entryPath,
			IsDirectory: true,
		})
		dirPaths = append(dirPaths, res.SubPath+name+"/")
	}

	for _, obj := range result.Objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		// The directory's own marker and nested keys do not belong in a
		// delimited listing; root markers never surface.
		if name == "" || strings.Contains(name, "/") || strings.HasPrefix(obj.Key, vpath.RootMarkerKey) {
			continue
		}
		listing.Entries = append(listing.Entries, Entry{
			Name:        name,
			Path:        path + name,
			Size:        obj.Size,
			Modified:    obj.LastModified,
			ETag:        obj.ETag,
			ContentType: obj.ContentType,
		})
	}

	// Directory entries have no native mtime in the object store; decorate
	// from the parent-modified table where present.
	dirPaths = append(dirPaths, res.SubPath)
	mtimes, err := f.store.GetDirModTimes(ctx, res.Mount.ID, dirPaths)
	if err != nil {
		return nil, err
	}
	if mt, ok := mtimes[res.SubPath]; ok {
		listing.Self.Modified = mt
	}
	for i := range listing.Entries {
		e := &listing.Entries[i]
		if !e.IsDirectory {
			continue
		}
		if mt, ok := mtimes[res.SubPath+e.Name+"/"]; ok {
			e.Modified = mt
		}
	}

	sort.Slice(listing.Entries, func(i, j int) bool {
		a, b := listing.Entries[i], listing.Entries[j]
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		return a.Name < b.Name
	})
	return listing, nil
}

// Stat returns metadata and access URLs for one path.
func (f *FileSystem) Stat(ctx context.Context, auth *authz.AuthResult, path string) (*FileInfo, error) {
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return nil, err
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return nil, err
	}

	key := res.ObjectKey
	if vpath.IsDir(res.SubPath) {
		key = res.DirKey()
	}
	info, err := driver.Stat(ctx, key)
	if err != nil {
		return nil, err
	}

	fi := &FileInfo{Entry: Entry{
		Name:        vpath.Base(path),
		Path:        path,
		IsDirectory: info.IsDirectory,
		Size:        info.Size,
		Modified:    info.LastModified,
		ETag:        info.ETag,
		ContentType: info.ContentType,
	}}
	if !info.IsDirectory {
		fi.PreviewURL, fi.DownloadURL, err = f.accessURLs(ctx, driver, res, vpath.Base(path))
		if err != nil {
			return nil, err
		}
	}
	return fi, nil
}

// accessURLs implements the proxy-vs-redirect decision. A webProxy mount gets
// gateway endpoints that stream through the server; otherwise both URLs are
// presigned S3 GETs with disposition and content-type overrides baked in.
func (f *FileSystem) accessURLs(ctx context.Context, driver ObjectStore, res *vpath.Resolved, filename string) (previewURL, downloadURL string, err error) {
	if res.Mount.WebProxy {
		escaped := url.QueryEscape(res.VirtualPath())
		return "/api/fs/download?path=" + escaped + "&inline=1",
			"/api/fs/download?path=" + escaped, nil
	}

	ttl := res.Mount.StorageConfig.SignedTTL()
	previewURL, err = driver.PresignGet(ctx, res.ObjectKey, ttl, s3driver.PresignGetOptions{
		Disposition: s3driver.InlineDisposition(filename),
		ContentType: s3driver.ContentTypeFor(filename, nil, false),
	})
	if err != nil {
		return "", "", err
	}
	downloadURL, err = driver.PresignGet(ctx, res.ObjectKey, ttl, s3driver.PresignGetOptions{
		Disposition: s3driver.AttachmentDisposition(filename),
		ContentType: s3driver.ContentTypeFor(filename, nil, true),
	})
	if err != nil {
		return "", "", err
	}
	return previewURL, downloadURL, nil
}

// FileLink returns a single shareable link for path. expiresIn overrides the
// storage config default when positive; forceDownload selects the attachment
// disposition.
func (f *FileSystem) FileLink(ctx context.Context, auth *authz.AuthResult, path string, expiresIn int, forceDownload bool) (string, error) {
	res, err := f.resolve(ctx, auth, path, models.PermissionMount)
	if err != nil {
		return "", err
	}
	if vpath.IsDir(res.SubPath) {
		return "", gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "cannot link a directory", path)
	}
	driver, err := f.driverFor(ctx, res)
	if err != nil {
		return "", err
	}

	ttl := res.Mount.StorageConfig.SignedTTL()
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}

	filename := vpath.Base(path)
	opts := s3driver.PresignGetOptions{
		Disposition: s3driver.InlineDisposition(filename),
		ContentType: s3driver.ContentTypeFor(filename, nil, false),
	}
	if forceDownload {
		opts.Disposition = s3driver.AttachmentDisposition(filename)
		opts.ContentType = s3driver.ContentTypeFor(filename, nil, true)
	}
	return driver.PresignGet(ctx, res.ObjectKey, ttl, opts)
}

// searchScanCap bounds how many keys one mount contributes to a search walk.
const searchScanCap = 10000

// SearchQuery parameterises Search. Scope narrows matches to "files" or
// "dirs"; empty or "all" matches both.
type SearchQuery struct {
	Query      string
	Scope      string
	MountID    string
	PathPrefix string
	Limit      int
	Offset     int
}

// SearchResult is a page of search matches.
type SearchResult struct {
	Results []Entry `json:"results"`
	Total   int     `json:"total"`
}

// Search walks the principal's visible mounts matching names by substring.
// Queries shorter than two characters are rejected.
func (f *FileSystem) Search(ctx context.Context, auth *authz.AuthResult, q SearchQuery) (*SearchResult, error) {
	if len(q.Query) < 2 {
		return nil, gwerrors.New(gwerrors.ErrInvalidPath, "query must be at least 2 characters")
	}
	if !auth.Authenticated {
		return nil, gwerrors.New(gwerrors.ErrUnauthorized, "authentication required")
	}
	if !auth.Can(models.PermissionMount) {
		return nil, gwerrors.New(gwerrors.ErrPermissionDenied, "missing capability: mount")
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}

	mounts, err := f.store.ListMounts(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(q.Query)
	allowed := auth.AllowedPrefix()
	var matches []Entry

	for _, m := range mounts {
		if q.MountID != "" && m.ID != q.MountID {
			continue
		}

		mountRoot := m.MountPath
		if mountRoot != "/" {
			mountRoot += "/"
		}
		prefix := m.StorageConfig.NormalizedRootPrefix()
		scanned := 0
		err := f.driverScan(ctx, m, prefix, func(obj s3driver.ObjectInfo) bool {
			scanned++
			if scanned > searchScanCap {
				return false
			}
			rel := strings.TrimPrefix(obj.Key, prefix)
			if rel == "" || strings.HasPrefix(rel, vpath.RootMarkerKey) {
				return true
			}
			virtual := mountRoot + rel
			name := vpath.Base(virtual)
			if !strings.Contains(strings.ToLower(name), needle) {
				return true
			}
			if !vpath.HasPrefix(virtual, allowed) {
				return true
			}
			if q.PathPrefix != "" && !vpath.HasPrefix(virtual, q.PathPrefix) {
				return true
			}
			if (q.Scope == "files" && obj.IsDirectory) || (q.Scope == "dirs" && !obj.IsDirectory) {
				return true
			}
			matches = append(matches, Entry{
				Name:        name,
				Path:        virtual,
				IsDirectory: obj.IsDirectory,
				Size:        obj.Size,
				Modified:    obj.LastModified,
				ETag:        obj.ETag,
			})
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })

	total := len(matches)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return &SearchResult{Results: matches[start:end], Total: total}, nil
}

func (f *FileSystem) driverScan(ctx context.Context, m *models.Mount, prefix string, fn func(s3driver.ObjectInfo) bool) error {
	driver, err := f.drivers.Get(ctx, &m.StorageConfig)
	if err != nil {
		return err
	}
	return driver.ListAllKeys(ctx, prefix, fn)
}
