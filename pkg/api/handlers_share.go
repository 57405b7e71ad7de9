package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatefs/gatefs/pkg/gateway/fs"
)

// shareHandler serves the public slug routes. No authentication: possession
// of the slug is the credential.
type shareHandler struct {
	fs *fs.FileSystem
}

func (h *shareHandler) view(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

func (h *shareHandler) download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

func (h *shareHandler) serve(w http.ResponseWriter, r *http.Request, inline bool) {
	dl, err := h.fs.OpenShared(r.Context(), chi.URLParam(r, "slug"), r.Header.Get("Range"), inline)
	if err != nil {
		Error(w, err)
		return
	}
	serveDownload(w, r, dl, inline)
}
