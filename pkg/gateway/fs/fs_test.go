package fs

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatefs/gatefs/pkg/gateway/authz"
	"github.com/gatefs/gatefs/pkg/gateway/dircache"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/store"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu         sync.Mutex
	objects    map[string]memObject
	uploads    map[string]map[int32][]byte
	nextUpload int

	putCalls  int
	listCalls int
	partCalls int
	aborted   []string
	partErr   error
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string]memObject),
		uploads: make(map[string]map[int32][]byte),
	}
}

func memETag(data []byte) string { return fmt.Sprintf("etag-%d", len(data)) }

func (m *memStore) Stat(_ context.Context, key string) (*s3driver.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, gwerrors.NewWithPath(gwerrors.ErrNotFound, "object not found", key)
	}
	return &s3driver.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         memETag(obj.data),
		LastModified: obj.modified,
		ContentType:  obj.contentType,
		IsDirectory:  obj.contentType == s3driver.DirectoryContentType || strings.HasSuffix(key, "/"),
	}, nil
}

func (m *memStore) Open(_ context.Context, key, rangeHeader string) (io.ReadCloser, *s3driver.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, gwerrors.NewWithPath(gwerrors.ErrNotFound, "object not found", key)
	}
	data := obj.data
	if rangeHeader != "" {
		var start, end int64
		fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}
	info := &s3driver.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: obj.contentType}
	return io.NopCloser(strings.NewReader(string(data))), info, nil
}

func (m *memStore) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	m.objects[key] = memObject{data: data, contentType: contentType, modified: time.Now()}
	return memETag(data), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) DeleteBatch(_ context.Context, keys []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil, nil
}

func (m *memStore) Copy(_ context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[srcKey]
	if !ok {
		return gwerrors.NewWithPath(gwerrors.ErrNotFound, "object not found", srcKey)
	}
	m.objects[dstKey] = obj
	return nil
}

func (m *memStore) ListDir(_ context.Context, prefix string) (*s3driver.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	result := &s3driver.ListResult{}
	seen := map[string]bool{}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		rest := k[len(prefix):]
		if idx := strings.Index(rest, "/"); idx >= 0 {
			cp := prefix + rest[:idx+1]
			if !seen[cp] {
				seen[cp] = true
				result.CommonPrefixes = append(result.CommonPrefixes, cp)
			}
			continue
		}
		obj := m.objects[k]
		result.Objects = append(result.Objects, s3driver.ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.data)),
			ETag:         memETag(obj.data),
			LastModified: obj.modified,
			ContentType:  obj.contentType,
		})
	}
	return result, nil
}

func (m *memStore) ListAllKeys(_ context.Context, prefix string, fn func(s3driver.ObjectInfo) bool) error {
	m.mu.Lock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	infos := make([]s3driver.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		obj := m.objects[k]
		infos = append(infos, s3driver.ObjectInfo{
			Key:         k,
			Size:        int64(len(obj.data)),
			IsDirectory: strings.HasSuffix(k, "/"),
		})
	}
	m.mu.Unlock()

	for _, info := range infos {
		if !fn(info) {
			return nil
		}
	}
	return nil
}

func (m *memStore) BucketUsage(ctx context.Context, prefix string) (int64, error) {
	var total int64
	err := m.ListAllKeys(ctx, prefix, func(obj s3driver.ObjectInfo) bool {
		total += obj.Size
		return true
	})
	return total, err
}

func (m *memStore) CreateMultipart(_ context.Context, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUpload++
	id := fmt.Sprintf("up-%d", m.nextUpload)
	m.uploads[id] = make(map[int32][]byte)
	return id, nil
}

func (m *memStore) UploadPart(_ context.Context, key, uploadID string, partNumber int32, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partCalls++
	if m.partErr != nil {
		return "", m.partErr
	}
	parts, ok := m.uploads[uploadID]
	if !ok {
		return "", gwerrors.New(gwerrors.ErrNotFound, "no such upload")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	parts[partNumber] = buf
	return memETag(buf), nil
}

func (m *memStore) CompleteMultipart(_ context.Context, key, uploadID string, parts []s3driver.CompletedPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.uploads[uploadID]
	if !ok {
		return "", gwerrors.New(gwerrors.ErrNotFound, "no such upload")
	}
	sorted := make([]s3driver.CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var data []byte
	for _, p := range sorted {
		data = append(data, stored[p.PartNumber]...)
	}
	m.objects[key] = memObject{data: data, modified: time.Now()}
	delete(m.uploads, uploadID)
	return memETag(data), nil
}

func (m *memStore) AbortMultipart(_ context.Context, key, uploadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = append(m.aborted, uploadID)
	delete(m.uploads, uploadID)
}

func (m *memStore) PresignGet(_ context.Context, key string, _ time.Duration, opts s3driver.PresignGetOptions) (string, error) {
	url := "https://signed.example/" + key
	if opts.Disposition != "" {
		url += "?disposition=" + strings.Fields(opts.Disposition)[0]
	}
	return url, nil
}

func (m *memStore) PresignPut(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	return "https://signed.example/put/" + key, nil
}

func (m *memStore) object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}

type singleSource struct{ s ObjectStore }

func (s singleSource) Get(context.Context, *models.StorageConfig) (ObjectStore, error) {
	return s.s, nil
}

type fixture struct {
	fs    *FileSystem
	store *store.GORMStore
	mem   *memStore
	mount *models.Mount
}

func newFixture(t *testing.T, mutate func(cfg *models.StorageConfig, m *models.Mount)) *fixture {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &models.StorageConfig{
		Name:            "primary",
		ProviderType:    "generic",
		Endpoint:        "http://s3.local",
		Bucket:          "bucket",
		AccessKeyID:     "enc",
		SecretAccessKey: "enc",
	}
	mount := &models.Mount{MountPath: "/files", CacheTTLSeconds: 60}
	if mutate != nil {
		mutate(cfg, mount)
	}

	cfgID, err := st.CreateStorageConfig(context.Background(), cfg)
	require.NoError(t, err)
	mount.StorageConfigID = cfgID
	mountID, err := st.CreateMount(context.Background(), mount)
	require.NoError(t, err)
	created, err := st.GetMount(context.Background(), mountID)
	require.NoError(t, err)

	mem := newMemStore()
	return &fixture{
		fs:    New(st, singleSource{mem}, dircache.New(0)),
		store: st,
		mem:   mem,
		mount: created,
	}
}

func adminAuth() *authz.AuthResult {
	return &authz.AuthResult{Authenticated: true, Type: authz.AuthTypeAdmin, PrincipalID: "admin-1"}
}

func keyAuth(basicPath string, perms ...models.Permission) *authz.AuthResult {
	key := &models.APIKey{ID: "key-1", BasicPath: basicPath}
	for _, p := range perms {
		switch p {
		case models.PermissionText:
			key.Text = true
		case models.PermissionFile:
			key.File = true
		case models.PermissionMount:
			key.Mount = true
		}
	}
	return &authz.AuthResult{Authenticated: true, Type: authz.AuthTypeAPIKey, PrincipalID: key.ID, Key: key}
}

func TestUploadAndStat(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	record, err := f.fs.Upload(ctx, adminAuth(), "/files/docs/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", record.ObjectKey)
	assert.Equal(t, int64(5), record.Size)
	assert.NotEmpty(t, record.Slug)

	info, err := f.fs.Stat(ctx, adminAuth(), "/files/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Name)
	assert.Equal(t, int64(5), info.Size)
	assert.Contains(t, info.PreviewURL, "signed.example")
	assert.Contains(t, info.DownloadURL, "disposition=attachment;")
}

func TestUploadRequiresMountCapability(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.fs.Upload(context.Background(), keyAuth("/", models.PermissionFile), "/files/a.txt", strings.NewReader("x"))
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrPermissionDenied))
}

func TestUploadOutsideAllowedPrefix(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.fs.Upload(context.Background(), keyAuth("/files/team-a", models.PermissionMount), "/files/team-b/x", strings.NewReader("x"))
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrPathForbidden))
}

func TestListFiltersMarkersAndDecoratesDirs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/a.txt", strings.NewReader("aa"))
	require.NoError(t, err)
	require.NoError(t, f.fs.Mkdir(ctx, auth, "/files/sub"))
	_, err = f.mem.Put(ctx, vpath.RootMarkerKey, strings.NewReader(""), s3driver.DirectoryContentType)
	require.NoError(t, err)

	listing, err := f.fs.List(ctx, auth, "/files")
	require.NoError(t, err)
	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "sub", listing.Entries[0].Name)
	assert.True(t, listing.Entries[0].IsDirectory)
	assert.False(t, listing.Entries[0].Modified.IsZero(), "dir mtime should come from the parent-modified table")
	assert.Equal(t, "a.txt", listing.Entries[1].Name)
	assert.True(t, listing.Self.IsDirectory)
}

func TestListUsesCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/a.txt", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = f.fs.List(ctx, auth, "/files")
	require.NoError(t, err)
	before := f.mem.listCalls
	_, err = f.fs.List(ctx, auth, "/files")
	require.NoError(t, err)
	assert.Equal(t, before, f.mem.listCalls)
}

func TestListCacheInvalidatedByUpload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.List(ctx, auth, "/files")
	require.NoError(t, err)

	_, err = f.fs.Upload(ctx, auth, "/files/new.txt", strings.NewReader("x"))
	require.NoError(t, err)

	listing, err := f.fs.List(ctx, auth, "/files")
	require.NoError(t, err)
	require.Len(t, listing.Entries, 1)
	assert.Equal(t, "new.txt", listing.Entries[0].Name)
}

func TestCacheDisabledWhenTTLZero(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	// The column defaults fill zero values on insert, so disabling requires
	// an explicit update.
	f.mount.CacheTTLSeconds = 0
	require.NoError(t, f.store.UpdateMount(ctx, f.mount))
	f.mount.StorageConfig.CacheTTLSeconds = 0
	require.NoError(t, f.store.UpdateStorageConfig(ctx, &f.mount.StorageConfig))

	_, err := f.fs.List(ctx, auth, "/files")
	require.NoError(t, err)
	before := f.mem.listCalls
	_, err = f.fs.List(ctx, auth, "/files")
	require.NoError(t, err)
	assert.Equal(t, before+1, f.mem.listCalls)
}

func TestMkdirIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	require.NoError(t, f.fs.Mkdir(ctx, auth, "/files/docs"))
	require.NoError(t, f.fs.Mkdir(ctx, auth, "/files/docs"))

	_, ok := f.mem.object("docs/")
	assert.True(t, ok)
}

func TestRemoveFileAndDirectory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/docs/a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = f.fs.Upload(ctx, auth, "/files/docs/b.txt", strings.NewReader("b"))
	require.NoError(t, err)

	require.NoError(t, f.fs.Remove(ctx, auth, "/files/docs/a.txt"))
	_, ok := f.mem.object("docs/a.txt")
	assert.False(t, ok)

	require.NoError(t, f.fs.Remove(ctx, auth, "/files/docs/"))
	_, ok = f.mem.object("docs/b.txt")
	assert.False(t, ok)
}

func TestRemoveMountRootRejected(t *testing.T) {
	f := newFixture(t, nil)

	err := f.fs.Remove(context.Background(), adminAuth(), "/files/")
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrInvalidPath))
}

func TestRemoveMissingFileIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	err := f.fs.Remove(context.Background(), adminAuth(), "/files/nope.txt")
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrNotFound))
}

func TestBatchRemoveBestEffort(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/keep-going.txt", strings.NewReader("x"))
	require.NoError(t, err)

	result := f.fs.BatchRemove(ctx, auth, []string{"/files/missing.txt", "/files/keep-going.txt"})
	assert.Equal(t, []string{"/files/keep-going.txt"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "/files/missing.txt", result.Failed[0].Path)
}

func TestRenameFile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/old.txt", strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, f.fs.Rename(ctx, auth, "/files/old.txt", "/files/new.txt"))
	_, ok := f.mem.object("old.txt")
	assert.False(t, ok)
	data, ok := f.mem.object("new.txt")
	require.True(t, ok)
	assert.Equal(t, "data", string(data))
}

func TestRenameConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = f.fs.Upload(ctx, auth, "/files/b.txt", strings.NewReader("b"))
	require.NoError(t, err)

	err = f.fs.Rename(ctx, auth, "/files/a.txt", "/files/b.txt")
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrConflict))
}

func TestRenameAcrossMountsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cfg2 := &models.StorageConfig{
		Name: "secondary", ProviderType: "generic", Endpoint: "http://s3.local",
		Bucket: "b2", AccessKeyID: "enc", SecretAccessKey: "enc",
	}
	_, err := f.store.CreateStorageConfig(ctx, cfg2)
	require.NoError(t, err)
	_, err = f.store.CreateMount(ctx, &models.Mount{Name: "other", MountPath: "/other", StorageConfigID: cfg2.ID})
	require.NoError(t, err)

	auth := adminAuth()
	_, err = f.fs.Upload(ctx, auth, "/files/a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	err = f.fs.Rename(ctx, auth, "/files/a.txt", "/other/a.txt")
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCrossMountRename))
}

func TestBatchCopySameConfig(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/src.txt", strings.NewReader("data"))
	require.NoError(t, err)

	result, err := f.fs.BatchCopy(ctx, auth, []CopyItem{{SourcePath: "/files/src.txt", TargetPath: "/files/dst.txt"}}, false)
	require.NoError(t, err)
	assert.False(t, result.RequiresClientSideCopy)
	assert.Equal(t, []string{"/files/src.txt"}, result.Succeeded)
	_, ok := f.mem.object("dst.txt")
	assert.True(t, ok)
}

func TestBatchCopyCrossConfigFlagsClientSide(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cfg2 := &models.StorageConfig{
		Name: "secondary", ProviderType: "generic", Endpoint: "http://s3.local",
		Bucket: "b2", AccessKeyID: "enc", SecretAccessKey: "enc",
	}
	_, err := f.store.CreateStorageConfig(ctx, cfg2)
	require.NoError(t, err)
	_, err = f.store.CreateMount(ctx, &models.Mount{Name: "other", MountPath: "/other", StorageConfigID: cfg2.ID})
	require.NoError(t, err)

	auth := adminAuth()
	_, err = f.fs.Upload(ctx, auth, "/files/src.txt", strings.NewReader("data"))
	require.NoError(t, err)

	result, err := f.fs.BatchCopy(ctx, auth, []CopyItem{{SourcePath: "/files/src.txt", TargetPath: "/other/dst.txt"}}, false)
	require.NoError(t, err)
	assert.True(t, result.RequiresClientSideCopy)
	require.Len(t, result.Items, 1)
}

func TestBatchCopySkipExisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/src.txt", strings.NewReader("new"))
	require.NoError(t, err)
	_, err = f.fs.Upload(ctx, auth, "/files/dst.txt", strings.NewReader("old"))
	require.NoError(t, err)

	result, err := f.fs.BatchCopy(ctx, auth, []CopyItem{{SourcePath: "/files/src.txt", TargetPath: "/files/dst.txt"}}, true)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	data, _ := f.mem.object("dst.txt")
	assert.Equal(t, "old", string(data))
}

func TestCapacityEnforcement(t *testing.T) {
	limit := int64(10)
	f := newFixture(t, func(cfg *models.StorageConfig, m *models.Mount) {
		cfg.TotalCapacityBytes = &limit
	})
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.Upload(ctx, auth, "/files/a.txt", strings.NewReader("123456"))
	require.NoError(t, err)

	_, err = f.fs.Upload(ctx, auth, "/files/b.txt", strings.NewReader("7890123"))
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCapacityExhausted))
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	for _, name := range []string{"report-jan.pdf", "report-feb.pdf", "notes.txt"} {
		_, err := f.fs.Upload(ctx, auth, "/files/"+name, strings.NewReader("x"))
		require.NoError(t, err)
	}

	result, err := f.fs.Search(ctx, auth, SearchQuery{Query: "report"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	_, err = f.fs.Search(ctx, auth, SearchQuery{Query: "r"})
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrInvalidPath))
}

func TestSearchScopedByAllowedPrefix(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.fs.Upload(ctx, adminAuth(), "/files/team-a/secret-report.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = f.fs.Upload(ctx, adminAuth(), "/files/team-b/public-report.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	result, err := f.fs.Search(ctx, keyAuth("/files/team-b", models.PermissionMount), SearchQuery{Query: "report"})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "/files/team-b/public-report.pdf", result.Results[0].Path)
}

func TestMultipartModeA(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	session, err := f.fs.InitMultipart(ctx, auth, "/files/big.bin", "application/octet-stream", 12)
	require.NoError(t, err)
	assert.Equal(t, "big.bin", session.Key)
	assert.Equal(t, int64(s3driver.MinPartSize), session.RecommendedPartSize)

	etag1, err := f.fs.UploadMultipartPart(ctx, auth, "/files/big.bin", session.Key, session.UploadID, 1, []byte("hello "))
	require.NoError(t, err)
	etag2, err := f.fs.UploadMultipartPart(ctx, auth, "/files/big.bin", session.Key, session.UploadID, 2, []byte("world!"))
	require.NoError(t, err)

	record, err := f.fs.CompleteMultipart(ctx, auth, "/files/big.bin", session.Key, session.UploadID, []s3driver.CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), record.Size)
	data, _ := f.mem.object("big.bin")
	assert.Equal(t, "hello world!", string(data))
}

func TestMultipartKeyMismatchRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	_, err := f.fs.UploadMultipartPart(ctx, auth, "/files/a.bin", "elsewhere/a.bin", "up-1", 1, []byte("x"))
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrInvalidPath))
}

func TestAbortMultipartAlwaysAcks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	session, err := f.fs.InitMultipart(ctx, auth, "/files/a.bin", "", 0)
	require.NoError(t, err)

	require.NoError(t, f.fs.AbortMultipart(ctx, auth, "/files/a.bin", session.Key, session.UploadID))
	assert.Contains(t, f.mem.aborted, session.UploadID)
	// Aborting twice still succeeds.
	require.NoError(t, f.fs.AbortMultipart(ctx, auth, "/files/a.bin", session.Key, session.UploadID))
}

func TestPresignPutAndCommit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	auth := adminAuth()

	presigned, err := f.fs.PresignPut(ctx, auth, "/files/docs", "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "docs/photo.jpg", presigned.ObjectKey)
	assert.Contains(t, presigned.PresignedURL, "signed.example/put/")
	assert.Equal(t, "image/jpeg", presigned.ContentType)

	// Simulate the client-direct PUT.
	_, err = f.mem.Put(ctx, "docs/photo.jpg", strings.NewReader("jpegbytes"), "image/jpeg")
	require.NoError(t, err)

	record, err := f.fs.PresignCommit(ctx, auth, PresignCommitRequest{
		FileID:     presigned.FileID,
		ObjectKey:  presigned.ObjectKey,
		TargetPath: "/files/docs/photo.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), record.Size)
	assert.NotEmpty(t, record.ETag, "etag backfilled from the object store")
	assert.NotEmpty(t, record.Slug)

	shared, err := f.store.GetSharedFileBySlug(ctx, record.Slug)
	require.NoError(t, err)
	assert.Equal(t, "docs/photo.jpg", shared.ObjectKey)
}

func TestOpenFileProxyVsRedirect(t *testing.T) {
	ctx := context.Background()

	proxyFix := newFixture(t, func(cfg *models.StorageConfig, m *models.Mount) { m.WebProxy = true })
	_, err := proxyFix.fs.Upload(ctx, adminAuth(), "/files/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	dl, err := proxyFix.fs.OpenFile(ctx, adminAuth(), "/files/a.txt", "", false)
	require.NoError(t, err)
	require.NotNil(t, dl.Body)
	data, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	assert.Equal(t, "hello", string(data))

	redirectFix := newFixture(t, nil)
	_, err = redirectFix.fs.Upload(ctx, adminAuth(), "/files/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	dl, err = redirectFix.fs.OpenFile(ctx, adminAuth(), "/files/a.txt", "", false)
	require.NoError(t, err)
	assert.Nil(t, dl.Body)
	assert.Contains(t, dl.RedirectURL, "signed.example")
}

func TestOpenFileRangeProxied(t *testing.T) {
	f := newFixture(t, func(cfg *models.StorageConfig, m *models.Mount) { m.WebProxy = true })
	ctx := context.Background()

	_, err := f.fs.Upload(ctx, adminAuth(), "/files/a.txt", strings.NewReader("0123456789"))
	require.NoError(t, err)

	dl, err := f.fs.OpenFile(ctx, adminAuth(), "/files/a.txt", "bytes=2-5", false)
	require.NoError(t, err)
	data, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	assert.Equal(t, "2345", string(data))
}

func TestOpenShared(t *testing.T) {
	f := newFixture(t, func(cfg *models.StorageConfig, m *models.Mount) { m.WebProxy = true })
	ctx := context.Background()

	record, err := f.fs.Upload(ctx, adminAuth(), "/files/a.txt", strings.NewReader("shared"))
	require.NoError(t, err)
	require.NotEmpty(t, record.Slug)

	dl, err := f.fs.OpenShared(ctx, record.Slug, "", false)
	require.NoError(t, err)
	require.NotNil(t, dl.Body)
	data, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	assert.Equal(t, "shared", string(data))
	assert.Equal(t, "a.txt", dl.Filename)

	_, err = f.fs.OpenShared(ctx, "no-such-slug", "", false)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrNotFound))
}
