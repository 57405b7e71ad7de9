// Package webdav serves a class-2 WebDAV surface (RFC 4918) over the gateway
// filesystem. Locks live in an in-process lock manager; everything else maps
// onto the same operations the JSON API uses.
package webdav

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/fs"
	"github.com/gatefs/gatefs/pkg/gateway/models"
)

const davMethods = "OPTIONS, GET, HEAD, PUT, DELETE, MKCOL, PROPFIND, PROPPATCH, COPY, MOVE, LOCK, UNLOCK"

// Handler dispatches WebDAV methods. Authentication happens upstream; the
// handler reads the AuthResult from the request context.
type Handler struct {
	fs     *fs.FileSystem
	locks  *LockManager
	prefix string
}

// NewHandler creates a WebDAV handler rooted at prefix (e.g. "/dav").
func NewHandler(fsys *fs.FileSystem, locks *LockManager, prefix string) *Handler {
	return &Handler{fs: fsys, locks: locks, prefix: strings.TrimSuffix(prefix, "/")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth := authz.FromContext(ctx)
	p := h.davPath(r)

	switch r.Method {
	case http.MethodOptions:
		h.handleOptions(w)
	case http.MethodGet, http.MethodHead:
		h.handleGet(ctx, w, r, auth, p)
	case "PROPFIND":
		h.handlePropfind(ctx, w, r, auth, p)
	case "PROPPATCH":
		h.handleProppatch(w, r, p)
	case "MKCOL":
		h.handleMkcol(ctx, w, r, auth, p)
	case http.MethodPut:
		h.handlePut(ctx, w, r, auth, p)
	case http.MethodDelete:
		h.handleDelete(ctx, w, r, auth, p)
	case "COPY", "MOVE":
		h.handleCopyMove(ctx, w, r, auth, p)
	case "LOCK":
		h.handleLock(ctx, w, r, auth, p)
	case "UNLOCK":
		h.handleUnlock(w, r, p)
	default:
		w.Header().Set("Allow", davMethods)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// davPath strips the mount prefix and guarantees a leading slash.
func (h *Handler) davPath(r *http.Request) string {
	p := strings.TrimPrefix(r.URL.Path, h.prefix)
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (h *Handler) handleOptions(w http.ResponseWriter) {
	w.Header().Set("DAV", "1, 2")
	w.Header().Set("MS-Author-Via", "DAV")
	w.Header().Set("Allow", davMethods)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(ctx context.Context, w http.ResponseWriter, r *http.Request, auth *authz.AuthResult, p string) {
	dl, err := h.fs.OpenFile(ctx, auth, p, r.Header.Get("Range"), false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if dl.RedirectURL != "" {
		http.Redirect(w, r, dl.RedirectURL, http.StatusFound)
		return
	}
	defer dl.Body.Close()

	if dl.Info.ContentType != "" {
		w.Header().Set("Content-Type", dl.Info.ContentType)
	}
	if dl.Info.ETag != "" {
		w.Header().Set("ETag", `"`+dl.Info.ETag+`"`)
	}
	if !dl.Info.LastModified.IsZero() {
		w.Header().Set("Last-Modified", dl.Info.LastModified.UTC().Format(davTimeFormat))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Info.Size, 10))

	status := http.StatusOK
	if dl.Info.ContentRange != "" {
		w.Header().Set("Content-Range", dl.Info.ContentRange)
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		io.Copy(w, dl.Body)
	}
}

func (h *Handler) handlePropfind(ctx context.Context, w http.ResponseWriter, r *http.Request, auth *authz.AuthResult, p string) {
	depth := parseDepth(r.Header.Get("Depth"))

	info, p, err := h.stat(ctx, auth, p)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ms := &multistatus{}
	if !info.IsDirectory || depth == 0 {
		ms.Responses = append(ms.Responses, entryResponse(h.prefix, info.Entry))
		writeMultistatus(w, ms)
		return
	}

	// Depth infinity is served as depth 1: unbounded tree walks over object
	// storage are too expensive to expose to arbitrary clients.
	listing, err := h.fs.List(ctx, auth, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ms.Responses = append(ms.Responses, entryResponse(h.prefix, listing.Self))
	for _, e := range listing.Entries {
		ms.Responses = append(ms.Responses, entryResponse(h.prefix, e))
	}
	writeMultistatus(w, ms)
}

// handleProppatch accepts property updates without storing them. Dead
// properties have no backing store here; clients such as Windows Explorer
// still require a 207 to proceed.
func (h *Handler) handleProppatch(w http.ResponseWriter, r *http.Request, p string) {
	io.Copy(io.Discard, r.Body)
	ms := &multistatus{Responses: []response{{
		Href:     h.prefix + escapeHref(p),
		Propstat: propstat{Status: "HTTP/1.1 200 OK"},
	}}}
	writeMultistatus(w, ms)
}

func (h *Handler) handleMkcol(ctx context.Context, w http.ResponseWriter, r *http.Request, auth *authz.AuthResult, p string) {
	if mkcolHasBody(r) {
		h.writeError(w, gwerrors.NewWithPath(gwerrors.ErrUnsupported, "MKCOL with a request body is not supported", p))
		return
	}
	dirPath := ensureDir(p)
	if _, _, err := h.stat(ctx, auth, dirPath); err == nil {
		w.Header().Set("Allow", davMethods)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.checkLock(p, r); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.fs.Mkdir(ctx, auth, dirPath); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// mkcolHasBody detects a request body even under chunked encoding, where
// ContentLength is -1 and only a probe read can tell.
func mkcolHasBody(r *http.Request) bool {
	if r.ContentLength > 0 {
		return true
	}
	if r.ContentLength == 0 {
		return false
	}
	buf := make([]byte, 1)
	n, _ := r.Body.Read(buf)
	return n > 0
}

func (h *Handler) handlePut(ctx context.Context, w http.ResponseWriter, r *http.Request, auth *authz.AuthResult, p string) {
	if strings.HasSuffix(p, "/") {
		h.writeError(w, gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "PUT target cannot be a collection", p))
		return
	}
	if err := h.checkLock(p, r); err != nil {
		h.writeError(w, err)
		return
	}

	existed := false
	if _, _, err := h.stat(ctx, auth, p); err == nil {
		existed = true
	}

	// Clients that never issue MKCOL (desktop sync tools mostly) expect
	// intermediate collections to appear implicitly.
	if parent := path.Dir(p); parent != "/" && parent != "." {
		if err := h.fs.Mkdir(ctx, auth, parent+"/"); err != nil {
			logger.Warn("implicit parent creation failed", "path", parent, "error", err)
		}
	}

	record, err := h.putBody(ctx, r, auth, p)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if record.ETag != "" {
		w.Header().Set("ETag", `"`+record.ETag+`"`)
	}
	if existed {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) putBody(ctx context.Context, r *http.Request, auth *authz.AuthResult, p string) (*fs.FileRecord, error) {
	length := r.ContentLength

	if length == 0 {
		return h.fs.Upload(ctx, auth, p, strings.NewReader(""))
	}

	mode, threshold := h.fs.UploadSettings(ctx)
	if mode == models.UploadModeDirect && length > 0 && length <= threshold {
		return h.fs.DirectUpload(ctx, auth, p, r.Body, length)
	}
	return h.fs.StreamUpload(ctx, auth, p, r.Body, fs.StreamOptions{
		ContentType:   r.Header.Get("Content-Type"),
		ContentLength: length,
	})
}

func (h *Handler) handleDelete(ctx context.Context, w http.ResponseWriter, r *http.Request, auth *authz.AuthResult, p string) {
	if err := h.checkLock(p, r); err != nil {
		h.writeError(w, err)
		return
	}
	info, p, err := h.stat(ctx, auth, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if info.IsDirectory {
		p = ensureDir(p)
	}
	if err := h.fs.Remove(ctx, auth, p); err != nil {
		h.writeError(w, err)
		return
	}
	h.locks.Forget(p)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCopyMove(ctx context.Context, w http.ResponseWriter, r *http.Request, auth *authz.AuthResult, src string) {
	dst, err := h.parseDestination(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	overwrite := r.Header.Get("Overwrite") != "F"

	if err := h.checkLock(dst, r); err != nil {
		h.writeError(w, err)
		return
	}
	if r.Method == "MOVE" {
		if err := h.checkLock(src, r); err != nil {
			h.writeError(w, err)
			return
		}
	}

	srcInfo, src, err := h.stat(ctx, auth, src)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if srcInfo.IsDirectory {
		src = ensureDir(src)
		dst = ensureDir(dst)
	} else {
		dst = strings.TrimSuffix(dst, "/")
	}

	dstExisted := false
	if _, _, statErr := h.stat(ctx, auth, dst); statErr == nil {
		dstExisted = true
	}
	if dstExisted && !overwrite {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	if dstExisted {
		if err := h.fs.Remove(ctx, auth, dst); err != nil {
			h.writeError(w, err)
			return
		}
	}

	if r.Method == "MOVE" {
		err = h.move(ctx, auth, src, dst)
	} else {
		err = h.copy(ctx, auth, src, dst)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	if dstExisted {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) move(ctx context.Context, auth *authz.AuthResult, src, dst string) error {
	err := h.fs.Rename(ctx, auth, src, dst)
	if !gwerrors.IsCode(err, gwerrors.ErrCrossMountRename) {
		return err
	}
	// Cross-mount moves degrade to copy-then-delete.
	if err := h.copy(ctx, auth, src, dst); err != nil {
		return err
	}
	return h.fs.Remove(ctx, auth, src)
}

func (h *Handler) copy(ctx context.Context, auth *authz.AuthResult, src, dst string) error {
	result, err := h.fs.BatchCopy(ctx, auth, []fs.CopyItem{{SourcePath: src, TargetPath: dst}}, false)
	if err != nil {
		return err
	}
	if result.RequiresClientSideCopy {
		return gwerrors.NewWithPath(gwerrors.ErrUpstreamUnavailable, "copy across storage backends is not supported over WebDAV", src)
	}
	if len(result.Failed) > 0 {
		return gwerrors.NewWithPath(gwerrors.ErrUpstreamUnavailable, result.Failed[0].Reason, result.Failed[0].Path)
	}
	return nil
}

func (h *Handler) handleLock(ctx context.Context, w http.ResponseWriter, r *http.Request, auth *authz.AuthResult, p string) {
	timeout := parseTimeout(r.Header.Get("Timeout"))
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		// Empty body refreshes the lock named in the If header.
		tokens := parseIfTokens(r.Header.Get("If"))
		var token string
		for t := range tokens {
			token = t
			break
		}
		lock, err := h.locks.Refresh(p, token, timeout)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeLockResponse(w, h.prefix, lock, http.StatusOK)
		return
	}

	var info lockInfo
	if err := xml.Unmarshal(body, &info); err != nil {
		h.writeError(w, gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "malformed lock request body", p))
		return
	}

	// The principal must be able to reach the path before a lock is granted.
	if _, _, err := h.stat(ctx, auth, p); err != nil && !gwerrors.IsCode(err, gwerrors.ErrNotFound) {
		h.writeError(w, err)
		return
	}

	depth := depthInfinity
	if r.Header.Get("Depth") == "0" {
		depth = 0
	}
	lock, err := h.locks.Acquire(ctx, p, info.OwnerText(), depth, info.Scope.Shared == nil, timeout)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// The client may have gone away between the body read and the grant;
	// don't strand a lock nobody holds the token for until it expires.
	if ctx.Err() != nil {
		_ = h.locks.Release(p, lock.Token)
		return
	}
	writeLockResponse(w, h.prefix, lock, http.StatusOK)
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request, p string) {
	token := strings.Trim(r.Header.Get("Lock-Token"), "<> ")
	if token == "" {
		h.writeError(w, gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "missing Lock-Token header", p))
		return
	}
	if err := h.locks.Release(p, token); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lockInfo is the DAV:lockinfo request body.
type lockInfo struct {
	XMLName xml.Name    `xml:"DAV: lockinfo"`
	Scope   lockScopeIn `xml:"lockscope"`
	Owner   ownerIn     `xml:"owner"`
}

type lockScopeIn struct {
	Exclusive *struct{} `xml:"exclusive"`
	Shared    *struct{} `xml:"shared"`
}

type ownerIn struct {
	Href string `xml:"href"`
	Text string `xml:",chardata"`
}

func (l lockInfo) OwnerText() string {
	if l.Owner.Href != "" {
		return l.Owner.Href
	}
	return strings.TrimSpace(l.Owner.Text)
}

// checkLock gates a mutating method against the lock table.
func (h *Handler) checkLock(p string, r *http.Request) error {
	return h.locks.Check(p, r.Header.Get("If"))
}

// stat probes p and, when it misses without a trailing slash, retries as a
// collection. Clients are inconsistent about trailing slashes on directories.
func (h *Handler) stat(ctx context.Context, auth *authz.AuthResult, p string) (*fs.FileInfo, string, error) {
	info, err := h.fs.Stat(ctx, auth, p)
	if err == nil {
		return info, p, nil
	}
	if gwerrors.IsCode(err, gwerrors.ErrNotFound) && !strings.HasSuffix(p, "/") {
		if info, dirErr := h.fs.Stat(ctx, auth, p+"/"); dirErr == nil {
			return info, p + "/", nil
		}
	}
	return nil, p, err
}

func (h *Handler) parseDestination(r *http.Request) (string, error) {
	raw := r.Header.Get("Destination")
	if raw == "" {
		return "", gwerrors.New(gwerrors.ErrInvalidPath, "missing Destination header")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", gwerrors.New(gwerrors.ErrInvalidPath, "malformed Destination header")
	}
	dst := strings.TrimPrefix(u.Path, h.prefix)
	if dst == "" || !strings.HasPrefix(dst, "/") {
		return "", gwerrors.New(gwerrors.ErrInvalidPath, "destination outside the WebDAV root")
	}
	return dst, nil
}

func parseDepth(header string) int {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "0":
		return 0
	case "1":
		return 1
	default:
		return depthInfinity
	}
}

// parseTimeout reads a Timeout header such as "Second-600" or
// "Infinite, Second-4100000000". Zero means the caller takes the default.
func parseTimeout(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if secs, ok := strings.CutPrefix(part, "Second-"); ok {
			if n, err := strconv.ParseInt(secs, 10, 64); err == nil && n > 0 {
				return time.Duration(n) * time.Second
			}
		}
	}
	return 0
}

func ensureDir(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code, ok := gwerrors.CodeOf(err)
	if !ok {
		errorID := uuid.NewString()
		logger.Error("webdav internal error", "error_id", errorID, "error", err)
		http.Error(w, "internal error (id "+errorID+")", http.StatusInternalServerError)
		return
	}
	http.Error(w, gwerrors.Describe(err), code.HTTPStatus())
}
