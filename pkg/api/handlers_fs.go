package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gatefs/gatefs/pkg/gateway/authz"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/fs"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
)

// maxPartBodyBytes bounds how much of one raw multipart part the server
// buffers in memory. Clients sending larger parts get a 413 and must
// re-chunk; silently truncating would commit a corrupt object.
const maxPartBodyBytes = 64 << 20

// fsHandler serves the /api/fs routes over the filesystem facade.
type fsHandler struct {
	fs *fs.FileSystem
}

func (h *fsHandler) list(w http.ResponseWriter, r *http.Request) {
	listing, err := h.fs.List(r.Context(), authz.FromContext(r.Context()), r.URL.Query().Get("path"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, listing)
}

func (h *fsHandler) stat(w http.ResponseWriter, r *http.Request) {
	info, err := h.fs.Stat(r.Context(), authz.FromContext(r.Context()), r.URL.Query().Get("path"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, info)
}

func (h *fsHandler) download(w http.ResponseWriter, r *http.Request) {
	inline := r.URL.Query().Get("inline") == "1"
	dl, err := h.fs.OpenFile(r.Context(), authz.FromContext(r.Context()),
		r.URL.Query().Get("path"), r.Header.Get("Range"), inline)
	if err != nil {
		Error(w, err)
		return
	}
	serveDownload(w, r, dl, inline)
}

// serveDownload streams a proxied body or redirects to a presigned URL.
// Shared by the authenticated download route and the public slug routes.
func serveDownload(w http.ResponseWriter, r *http.Request, dl *fs.Download, inline bool) {
	if dl.RedirectURL != "" {
		http.Redirect(w, r, dl.RedirectURL, http.StatusFound)
		return
	}
	defer dl.Body.Close()

	contentType := dl.Info.ContentType
	if contentType == "" || contentType == s3driver.DirectoryContentType {
		contentType = s3driver.ContentTypeFor(dl.Filename, nil, !inline)
	}
	disposition := s3driver.AttachmentDisposition(dl.Filename)
	if inline {
		disposition = s3driver.InlineDisposition(dl.Filename)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Info.Size, 10))
	if dl.Info.ETag != "" {
		w.Header().Set("ETag", `"`+dl.Info.ETag+`"`)
	}

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

func (h *fsHandler) mkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.fs.Mkdir(r.Context(), authz.FromContext(r.Context()), req.Path); err != nil {
		Error(w, err)
		return
	}
	Created(w, map[string]string{"path": req.Path})
}

// upload accepts multipart/form-data with a "file" part and a "path" field
// naming the target directory. use_multipart=1 streams the body through the
// bounded multipart pipeline instead of buffering.
func (h *fsHandler) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth := authz.FromContext(ctx)

	reader, err := r.MultipartReader()
	if err != nil {
		BadRequest(w, "expected multipart/form-data body")
		return
	}

	var dirPath string
	useMultipart := false
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			BadRequest(w, "missing file part")
			return
		}
		if err != nil {
			BadRequest(w, "malformed multipart body")
			return
		}

		switch part.FormName() {
		case "path":
			value, _ := io.ReadAll(io.LimitReader(part, 4096))
			dirPath = string(value)
		case "use_multipart":
			value, _ := io.ReadAll(io.LimitReader(part, 16))
			useMultipart = string(value) == "1" || string(value) == "true"
		case "file":
			if dirPath == "" {
				BadRequest(w, "path field must precede file part")
				return
			}
			target := strings.TrimSuffix(dirPath, "/") + "/" + part.FileName()

			var record *fs.FileRecord
			var upErr error
			if useMultipart {
				record, upErr = h.fs.StreamUpload(ctx, auth, target, part, fs.StreamOptions{ContentLength: -1})
			} else {
				record, upErr = h.fs.Upload(ctx, auth, target, part)
			}
			if upErr != nil {
				Error(w, upErr)
				return
			}
			Created(w, record)
			return
		default:
			io.Copy(io.Discard, part)
		}
	}
}

func (h *fsHandler) multipartInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path        string `json:"path"`
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
		FileSize    int64  `json:"fileSize"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	target := req.Path
	if req.Filename != "" {
		target = strings.TrimSuffix(req.Path, "/") + "/" + req.Filename
	}
	session, err := h.fs.InitMultipart(r.Context(), authz.FromContext(r.Context()), target, req.ContentType, req.FileSize)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, session)
}

func (h *fsHandler) multipartPart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partNumber, err := strconv.ParseInt(q.Get("partNumber"), 10, 32)
	if err != nil {
		BadRequest(w, "invalid partNumber")
		return
	}
	// Read one byte past the cap so an oversized part is detected instead
	// of truncated.
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPartBodyBytes+1))
	if err != nil {
		BadRequest(w, "failed to read part body")
		return
	}
	if len(data) > maxPartBodyBytes {
		Error(w, gwerrors.New(gwerrors.ErrPayloadTooLarge, "part body exceeds the maximum part size"))
		return
	}

	etag, err := h.fs.UploadMultipartPart(r.Context(), authz.FromContext(r.Context()),
		q.Get("path"), q.Get("key"), q.Get("uploadId"), int32(partNumber), data)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, map[string]string{"etag": etag})
}

func (h *fsHandler) multipartComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		Key      string `json:"key"`
		UploadID string `json:"uploadId"`
		Parts    []struct {
			PartNumber int32  `json:"partNumber"`
			ETag       string `json:"etag"`
		} `json:"parts"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	parts := make([]s3driver.CompletedPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, s3driver.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	record, err := h.fs.CompleteMultipart(r.Context(), authz.FromContext(r.Context()),
		req.Path, req.Key, req.UploadID, parts)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, record)
}

func (h *fsHandler) multipartAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		Key      string `json:"key"`
		UploadID string `json:"uploadId"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.fs.AbortMultipart(r.Context(), authz.FromContext(r.Context()), req.Path, req.Key, req.UploadID); err != nil {
		Error(w, err)
		return
	}
	OK(w, map[string]bool{"aborted": true})
}

func (h *fsHandler) presign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		FileName string `json:"fileName"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	upload, err := h.fs.PresignPut(r.Context(), authz.FromContext(r.Context()), req.Path, req.FileName)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, upload)
}

func (h *fsHandler) presignCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID     string `json:"fileId"`
		ObjectKey  string `json:"objectKey"`
		TargetPath string `json:"targetPath"`
		ETag       string `json:"etag"`
		FileSize   int64  `json:"fileSize"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	record, err := h.fs.PresignCommit(r.Context(), authz.FromContext(r.Context()), fs.PresignCommitRequest{
		FileID:     req.FileID,
		ObjectKey:  req.ObjectKey,
		TargetPath: req.TargetPath,
		ETag:       req.ETag,
		FileSize:   req.FileSize,
	})
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, record)
}

func (h *fsHandler) rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPath string `json:"oldPath"`
		NewPath string `json:"newPath"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.fs.Rename(r.Context(), authz.FromContext(r.Context()), req.OldPath, req.NewPath); err != nil {
		Error(w, err)
		return
	}
	OK(w, map[string]string{"path": req.NewPath})
}

func (h *fsHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.fs.Remove(r.Context(), authz.FromContext(r.Context()), r.URL.Query().Get("path")); err != nil {
		Error(w, err)
		return
	}
	OK(w, map[string]bool{"removed": true})
}

func (h *fsHandler) batchRemove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	OK(w, h.fs.BatchRemove(r.Context(), authz.FromContext(r.Context()), req.Paths))
}

func (h *fsHandler) batchCopy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items        []fs.CopyItem `json:"items"`
		SkipExisting bool          `json:"skipExisting"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.fs.BatchCopy(r.Context(), authz.FromContext(r.Context()), req.Items, req.SkipExisting)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, result)
}

func (h *fsHandler) batchCopyCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetMountID string `json:"targetMountId"`
		Files         []struct {
			TargetPath string `json:"targetPath"`
		} `json:"files"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	paths := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		paths = append(paths, f.TargetPath)
	}
	OK(w, h.fs.BatchCopyCommit(r.Context(), authz.FromContext(r.Context()), paths))
}

func (h *fsHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	result, err := h.fs.Search(r.Context(), authz.FromContext(r.Context()), fs.SearchQuery{
		Query:      q.Get("q"),
		Scope:      q.Get("scope"),
		MountID:    q.Get("mount_id"),
		PathPrefix: q.Get("path"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, result)
}

func (h *fsHandler) fileLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expiresIn, _ := strconv.Atoi(q.Get("expires_in"))
	forceDownload := q.Get("force_download") == "1" || q.Get("force_download") == "true"

	link, err := h.fs.FileLink(r.Context(), authz.FromContext(r.Context()), q.Get("path"), expiresIn, forceDownload)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, map[string]string{"url": link})
}

func (h *fsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	record, err := h.fs.UpdateInline(r.Context(), authz.FromContext(r.Context()), req.Path, req.Content)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, record)
}

func (h *fsHandler) usage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("storage_config_id")
	if id == "" {
		BadRequest(w, "storage_config_id is required")
		return
	}
	used, capacity, err := h.fs.Usage(r.Context(), authz.FromContext(r.Context()), id)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, map[string]int64{"usedBytes": used, "capacityBytes": capacity})
}
