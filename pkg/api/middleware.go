package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
)

// requestLogger logs request start at DEBUG and completion at INFO through
// the process logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

// corsHeaders answers preflight requests and stamps cross-origin headers on
// everything else. A no-op when no origin is configured.
func corsHeaders(allowOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allowOrigin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Headers",
				"Authorization, Content-Type, Depth, Destination, Overwrite, If, Lock-Token, Range")
			w.Header().Set("Access-Control-Allow-Methods",
				"COPY, DELETE, GET, HEAD, LOCK, MKCOL, MOVE, OPTIONS, PATCH, POST, PROPFIND, PROPPATCH, PUT, UNLOCK")
			w.Header().Set("Access-Control-Expose-Headers", "ETag, Content-Range, Content-Disposition")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the Authorization header into an AuthResult and
// stores it in the request context. Resolution failures become 401 here;
// anonymous requests pass through and fail later at the capability check,
// which lets public routes share the middleware.
func authenticate(resolver *authz.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := resolver.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="gatefs"`)
				Error(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(authz.WithAuth(r.Context(), result)))
		})
	}
}

// requireAdmin rejects non-admin principals. Mounted under /api/admin.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := authz.FromContext(r.Context())
		if !auth.IsAdmin() {
			writeJSON(w, http.StatusForbidden, Envelope{
				Code:    "permissionDenied",
				Message: "admin access required",
				Success: false,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
