package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/gatefs/gatefs/pkg/gateway/fs"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/store"
)

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeObjects is an in-memory fs.ObjectStore.
type fakeObjects struct {
	mu         sync.Mutex
	objects    map[string]fakeObject
	uploads    map[string]map[int32][]byte
	nextUpload int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		objects: make(map[string]fakeObject),
		uploads: make(map[string]map[int32][]byte),
	}
}

func fakeETag(data []byte) string { return fmt.Sprintf("etag-%d", len(data)) }

func (m *fakeObjects) Stat(_ context.Context, key string) (*s3driver.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, gwerrors.NewWithPath(gwerrors.ErrNotFound, "object not found", key)
	}
	return &s3driver.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         fakeETag(obj.data),
		LastModified: obj.modified,
		ContentType:  obj.contentType,
		IsDirectory:  obj.contentType == s3driver.DirectoryContentType || strings.HasSuffix(key, "/"),
	}, nil
}

func (m *fakeObjects) Open(_ context.Context, key, rangeHeader string) (io.ReadCloser, *s3driver.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, gwerrors.NewWithPath(gwerrors.ErrNotFound, "object not found", key)
	}
	data := obj.data
	info := &s3driver.ObjectInfo{Key: key, Size: int64(len(data)), ETag: fakeETag(obj.data), ContentType: obj.contentType}
	if rangeHeader != "" {
		var start, end int64
		fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		full := len(data)
		data = data[start : end+1]
		info.Size = int64(len(data))
		info.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, end, full)
	}
	return io.NopCloser(strings.NewReader(string(data))), info, nil
}

func (m *fakeObjects) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = fakeObject{data: data, contentType: contentType, modified: time.Now()}
	return fakeETag(data), nil
}

func (m *fakeObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *fakeObjects) DeleteBatch(_ context.Context, keys []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil, nil
}

func (m *fakeObjects) Copy(_ context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[srcKey]
	if !ok {
		return gwerrors.NewWithPath(gwerrors.ErrNotFound, "object not found", srcKey)
	}
	m.objects[dstKey] = obj
	return nil
}

func (m *fakeObjects) ListDir(_ context.Context, prefix string) (*s3driver.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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
			ETag:         fakeETag(obj.data),
			LastModified: obj.modified,
			ContentType:  obj.contentType,
		})
	}
	return result, nil
}

func (m *fakeObjects) ListAllKeys(_ context.Context, prefix string, fn func(s3driver.ObjectInfo) bool) error {
	m.mu.Lock()
	var infos []s3driver.ObjectInfo
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		obj := m.objects[k]
		infos = append(infos, s3driver.ObjectInfo{Key: k, Size: int64(len(obj.data)), IsDirectory: strings.HasSuffix(k, "/")})
	}
	m.mu.Unlock()

	for _, info := range infos {
		if !fn(info) {
			return nil
		}
	}
	return nil
}

func (m *fakeObjects) BucketUsage(ctx context.Context, prefix string) (int64, error) {
	var total int64
	err := m.ListAllKeys(ctx, prefix, func(obj s3driver.ObjectInfo) bool {
		total += obj.Size
		return true
	})
	return total, err
}

func (m *fakeObjects) CreateMultipart(_ context.Context, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUpload++
	id := fmt.Sprintf("up-%d", m.nextUpload)
	m.uploads[id] = make(map[int32][]byte)
	return id, nil
}

func (m *fakeObjects) UploadPart(_ context.Context, key, uploadID string, partNumber int32, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.uploads[uploadID]
	if !ok {
		return "", gwerrors.New(gwerrors.ErrNotFound, "no such upload")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	parts[partNumber] = buf
	return fakeETag(buf), nil
}

func (m *fakeObjects) CompleteMultipart(_ context.Context, key, uploadID string, parts []s3driver.CompletedPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.uploads[uploadID]
	if !ok {
		return "", gwerrors.New(gwerrors.ErrNotFound, "no such upload")
	}
	var data []byte
	for _, p := range parts {
		data = append(data, stored[p.PartNumber]...)
	}
	m.objects[key] = fakeObject{data: data, modified: time.Now()}
	delete(m.uploads, uploadID)
	return fakeETag(data), nil
}

func (m *fakeObjects) AbortMultipart(_ context.Context, key, uploadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
}

func (m *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration, _ s3driver.PresignGetOptions) (string, error) {
	return "https://signed.example/" + key, nil
}

func (m *fakeObjects) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://signed.example/put/" + key, nil
}

func (m *fakeObjects) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type fakeSource struct{ s fs.ObjectStore }

func (s fakeSource) Get(context.Context, *models.StorageConfig) (fs.ObjectStore, error) {
	return s.s, nil
}

type davFixture struct {
	handler *Handler
	objects *fakeObjects
}

func newDAVFixture(t *testing.T, mutate func(cfg *models.StorageConfig, m *models.Mount)) *davFixture {
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
	mount := &models.Mount{MountPath: "/files", WebProxy: true}
	if mutate != nil {
		mutate(cfg, mount)
	}

	cfgID, err := st.CreateStorageConfig(context.Background(), cfg)
	require.NoError(t, err)
	mount.StorageConfigID = cfgID
	_, err = st.CreateMount(context.Background(), mount)
	require.NoError(t, err)

	objects := newFakeObjects()
	fsys := fs.New(st, fakeSource{objects}, dircache.New(0))
	locks := NewLockManager()
	t.Cleanup(locks.Close)

	return &davFixture{
		handler: NewHandler(fsys, locks, "/dav"),
		objects: objects,
	}
}

func (f *davFixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	auth := &authz.AuthResult{Authenticated: true, Type: authz.AuthTypeAdmin, PrincipalID: "admin-1"}
	req = req.WithContext(authz.WithAuth(req.Context(), auth))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *davFixture) doAnonymous(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestOptionsAdvertisesClass2(t *testing.T) {
	f := newDAVFixture(t, nil)

	rec := f.do(http.MethodOptions, "/dav/files/", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1, 2", rec.Header().Get("DAV"))
	assert.Equal(t, "DAV", rec.Header().Get("MS-Author-Via"))
	assert.Contains(t, rec.Header().Get("Allow"), "PROPFIND")
}

func TestPutThenGet(t *testing.T) {
	f := newDAVFixture(t, nil)

	rec := f.do(http.MethodPut, "/dav/files/a.txt", "hello webdav", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	rec = f.do(http.MethodGet, "/dav/files/a.txt", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello webdav", rec.Body.String())
	assert.Equal(t, "12", rec.Header().Get("Content-Length"))
}

func TestPutOverwriteReturnsNoContent(t *testing.T) {
	f := newDAVFixture(t, nil)

	require.Equal(t, http.StatusCreated, f.do(http.MethodPut, "/dav/files/a.txt", "one", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPut, "/dav/files/a.txt", "two", nil).Code)

	rec := f.do(http.MethodGet, "/dav/files/a.txt", "", nil)
	assert.Equal(t, "two", rec.Body.String())
}

func TestGetRange(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "0123456789", nil)

	rec := f.do(http.MethodGet, "/dav/files/a.txt", "", map[string]string{"Range": "bytes=2-5"})
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
}

func TestGetMissingFile(t *testing.T) {
	f := newDAVFixture(t, nil)

	rec := f.do(http.MethodGet, "/dav/files/nope.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRedirectsWhenProxyDisabled(t *testing.T) {
	f := newDAVFixture(t, func(_ *models.StorageConfig, m *models.Mount) {
		m.WebProxy = false
	})
	f.do(http.MethodPut, "/dav/files/a.txt", "data", nil)

	rec := f.do(http.MethodGet, "/dav/files/a.txt", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "signed.example")
}

func TestMkcol(t *testing.T) {
	f := newDAVFixture(t, nil)

	assert.Equal(t, http.StatusCreated, f.do("MKCOL", "/dav/files/docs", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do("MKCOL", "/dav/files/docs", "", nil).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, f.do("MKCOL", "/dav/files/other", "<body/>", nil).Code)
}

func TestMkcolChunkedBodyRejected(t *testing.T) {
	f := newDAVFixture(t, nil)

	// Chunked encoding reports ContentLength -1; the body must still be
	// detected.
	req := httptest.NewRequest("MKCOL", "/dav/files/chunky", strings.NewReader("<body/>"))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	auth := &authz.AuthResult{Authenticated: true, Type: authz.AuthTypeAdmin, PrincipalID: "admin-1"}
	req = req.WithContext(authz.WithAuth(req.Context(), auth))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.False(t, f.objects.has("chunky/"))
}

func TestPropfindDirectory(t *testing.T) {
	f := newDAVFixture(t, nil)
	require.Equal(t, http.StatusCreated, f.do("MKCOL", "/dav/files/docs", "", nil).Code)
	f.do(http.MethodPut, "/dav/files/docs/b.txt", "bb", nil)

	rec := f.do("PROPFIND", "/dav/files/docs", "", map[string]string{"Depth": "1"})
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<D:href>/dav/files/docs/</D:href>")
	assert.Contains(t, body, "<D:href>/dav/files/docs/b.txt</D:href>")
	assert.Contains(t, body, "<D:collection></D:collection>")
	assert.Contains(t, body, "<D:getcontentlength>2</D:getcontentlength>")
}

func TestPropfindDepthZero(t *testing.T) {
	f := newDAVFixture(t, nil)
	require.Equal(t, http.StatusCreated, f.do("MKCOL", "/dav/files/docs", "", nil).Code)
	f.do(http.MethodPut, "/dav/files/docs/b.txt", "bb", nil)

	rec := f.do("PROPFIND", "/dav/files/docs/", "", map[string]string{"Depth": "0"})
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.NotContains(t, rec.Body.String(), "b.txt")
}

func TestPropfindFile(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "aaa", nil)

	rec := f.do("PROPFIND", "/dav/files/a.txt", "", map[string]string{"Depth": "0"})
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), "<D:getcontentlength>3</D:getcontentlength>")
	assert.NotContains(t, rec.Body.String(), "<D:collection>")
}

func TestDeleteFile(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "x", nil)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/dav/files/a.txt", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/dav/files/a.txt", "", nil).Code)
}

func TestDeleteDirectoryRecursive(t *testing.T) {
	f := newDAVFixture(t, nil)
	require.Equal(t, http.StatusCreated, f.do("MKCOL", "/dav/files/docs", "", nil).Code)
	f.do(http.MethodPut, "/dav/files/docs/b.txt", "bb", nil)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/dav/files/docs", "", nil).Code)
	assert.False(t, f.objects.has("docs/b.txt"))
	assert.False(t, f.objects.has("docs/"))
}

func TestCopyFile(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "data", nil)

	rec := f.do("COPY", "/dav/files/a.txt", "", map[string]string{
		"Destination": "http://example.test/dav/files/b.txt",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, f.objects.has("a.txt"))
	assert.True(t, f.objects.has("b.txt"))
}

func TestCopyOverwriteRefused(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "aa", nil)
	f.do(http.MethodPut, "/dav/files/b.txt", "bb", nil)

	rec := f.do("COPY", "/dav/files/a.txt", "", map[string]string{
		"Destination": "http://example.test/dav/files/b.txt",
		"Overwrite":   "F",
	})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestMoveFile(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "data", nil)

	rec := f.do("MOVE", "/dav/files/a.txt", "", map[string]string{
		"Destination": "http://example.test/dav/files/b.txt",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, f.objects.has("a.txt"))
	assert.True(t, f.objects.has("b.txt"))
}

func TestMoveMissingDestinationHeader(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "data", nil)

	rec := f.do("MOVE", "/dav/files/a.txt", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const lockBody = `<?xml version="1.0" encoding="utf-8"?>
<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:exclusive/></D:lockscope>
  <D:locktype><D:write/></D:locktype>
  <D:owner><D:href>alice</D:href></D:owner>
</D:lockinfo>`

func TestLockPutUnlockCycle(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "v1", nil)

	rec := f.do("LOCK", "/dav/files/a.txt", lockBody, map[string]string{"Timeout": "Second-120"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := strings.Trim(rec.Header().Get("Lock-Token"), "<>")
	require.Contains(t, token, "opaquelocktoken:")
	assert.Contains(t, rec.Body.String(), "<D:lockdiscovery>")

	// Without the token the write is refused.
	rec = f.do(http.MethodPut, "/dav/files/a.txt", "v2", nil)
	assert.Equal(t, http.StatusLocked, rec.Code)

	// Presenting the token in If unlocks the write.
	rec = f.do(http.MethodPut, "/dav/files/a.txt", "v2", map[string]string{"If": "(<" + token + ">)"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do("UNLOCK", "/dav/files/a.txt", "", map[string]string{"Lock-Token": "<" + token + ">"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPut, "/dav/files/a.txt", "v3", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLockRefresh(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "v1", nil)

	rec := f.do("LOCK", "/dav/files/a.txt", lockBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := strings.Trim(rec.Header().Get("Lock-Token"), "<>")

	rec = f.do("LOCK", "/dav/files/a.txt", "", map[string]string{
		"If":      "(<" + token + ">)",
		"Timeout": "Second-3600",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), token)
}

func TestUnlockWrongToken(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "v1", nil)

	rec := f.do("LOCK", "/dav/files/a.txt", lockBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do("UNLOCK", "/dav/files/a.txt", "", map[string]string{"Lock-Token": "<opaquelocktoken:bogus>"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteReleasesLock(t *testing.T) {
	f := newDAVFixture(t, nil)
	f.do(http.MethodPut, "/dav/files/a.txt", "v1", nil)

	rec := f.do("LOCK", "/dav/files/a.txt", lockBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := strings.Trim(rec.Header().Get("Lock-Token"), "<>")

	rec = f.do(http.MethodDelete, "/dav/files/a.txt", "", map[string]string{"If": "(<" + token + ">)"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The lock went with the resource; a fresh PUT needs no token.
	rec = f.do(http.MethodPut, "/dav/files/a.txt", "v2", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAnonymousRejected(t *testing.T) {
	f := newDAVFixture(t, nil)

	rec := f.doAnonymous(http.MethodGet, "/dav/files/a.txt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownMethod(t *testing.T) {
	f := newDAVFixture(t, nil)

	rec := f.do("TRACE", "/dav/files/a.txt", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
