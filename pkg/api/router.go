package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gatefs/gatefs/pkg/gateway/authz"
	"github.com/gatefs/gatefs/pkg/gateway/fs"
	"github.com/gatefs/gatefs/pkg/gateway/metrics"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/secret"
	"github.com/gatefs/gatefs/pkg/gateway/store"
	"github.com/gatefs/gatefs/pkg/gateway/webdav"
)

// Deps collects everything the HTTP surface needs.
type Deps struct {
	FS       *fs.FileSystem
	Store    store.Store
	Resolver *authz.Resolver
	JWT      *authz.JWTService
	Secrets  *secret.Encryptor
	Drivers  *s3driver.Cache
	Locks    *webdav.LockManager

	// HTTPMetrics may be nil when metrics are disabled.
	HTTPMetrics *metrics.HTTPMetrics

	Version string
}

// NewRouter builds the full route tree: JSON API under /api, WebDAV under
// /dav, public share slugs, health probes and the optional metrics endpoint.
func NewRouter(cfg Config, deps Deps) http.Handler {
	cfg.applyDefaults()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsHeaders(cfg.CORSAllowOrigin))
	r.Use(deps.HTTPMetrics.Middleware)

	fsh := &fsHandler{fs: deps.FS}
	auth := &authHandler{store: deps.Store, jwt: deps.JWT}
	admin := &adminHandler{store: deps.Store, secrets: deps.Secrets, drivers: deps.Drivers, fs: deps.FS}
	share := &shareHandler{fs: deps.FS}
	health := &healthHandler{store: deps.Store, version: deps.Version}

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(deps.Resolver))

		r.Post("/auth/login", auth.login)
		r.Get("/auth/me", auth.me)

		// Streaming routes sit outside the request timeout.
		r.Group(func(r chi.Router) {
			r.Get("/fs/download", fsh.download)
			r.Head("/fs/download", fsh.download)
			r.Post("/fs/upload", fsh.upload)
			r.Post("/fs/multipart/part", fsh.multipartPart)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			r.Get("/fs/list", fsh.list)
			r.Get("/fs/get", fsh.stat)
			r.Post("/fs/mkdir", fsh.mkdir)
			r.Post("/fs/multipart/init", fsh.multipartInit)
			r.Post("/fs/multipart/complete", fsh.multipartComplete)
			r.Post("/fs/multipart/abort", fsh.multipartAbort)
			r.Post("/fs/presign", fsh.presign)
			r.Post("/fs/presign/commit", fsh.presignCommit)
			r.Post("/fs/rename", fsh.rename)
			r.Delete("/fs/remove", fsh.remove)
			r.Post("/fs/batch-remove", fsh.batchRemove)
			r.Post("/fs/batch-copy", fsh.batchCopy)
			r.Post("/fs/batch-copy-commit", fsh.batchCopyCommit)
			r.Get("/fs/search", fsh.search)
			r.Get("/fs/file-link", fsh.fileLink)
			r.Post("/fs/update", fsh.update)
			r.Get("/fs/usage", fsh.usage)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/keys", admin.listKeys)
				r.Post("/keys", admin.createKey)
				r.Delete("/keys/{id}", admin.deleteKey)

				r.Get("/mounts", admin.listMounts)
				r.Post("/mounts", admin.createMount)
				r.Patch("/mounts/{id}", admin.updateMount)
				r.Delete("/mounts/{id}", admin.deleteMount)

				r.Get("/storage", admin.listStorageConfigs)
				r.Post("/storage", admin.createStorageConfig)
				r.Patch("/storage/{id}", admin.updateStorageConfig)
				r.Delete("/storage/{id}", admin.deleteStorageConfig)

				r.Get("/settings", admin.getSettings)
				r.Put("/settings", admin.updateSettings)
			})
		})
	})

	// WebDAV speaks its own verb set, so it mounts as a catch-all handler
	// rather than per-method chi routes.
	dav := webdav.NewHandler(deps.FS, deps.Locks, "/dav")
	r.With(authenticate(deps.Resolver)).Handle("/dav", dav)
	r.With(authenticate(deps.Resolver)).Handle("/dav/*", dav)

	r.Get("/file-view/{slug}", share.view)
	r.Head("/file-view/{slug}", share.view)
	r.Get("/file-download/{slug}", share.download)
	r.Head("/file-download/{slug}", share.download)

	r.Get("/health", health.live)
	r.Get("/health/ready", health.ready)
	r.Handle("/metrics", metrics.Handler())

	return r
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
