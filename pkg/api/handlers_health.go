package api

import (
	"net/http"

	"github.com/gatefs/gatefs/pkg/gateway/store"
)

type healthHandler struct {
	store   store.Store
	version string
}

// live reports process liveness only.
func (h *healthHandler) live(w http.ResponseWriter, _ *http.Request) {
	OK(w, map[string]string{"status": "ok", "version": h.version})
}

// ready additionally checks the metadata store connection.
func (h *healthHandler) ready(w http.ResponseWriter, _ *http.Request) {
	if err := h.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, Envelope{
			Code:    "upstreamUnavailable",
			Message: "metadata store unreachable",
			Success: false,
		})
		return
	}
	OK(w, map[string]string{"status": "ready", "version": h.version})
}
