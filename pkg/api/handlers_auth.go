package api

import (
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
	"github.com/gatefs/gatefs/pkg/gateway/store"
)

type authHandler struct {
	store store.Store
	jwt   *authz.JWTService
}

// login exchanges admin credentials for a bearer token. Failures are
// deliberately uniform so usernames cannot be probed.
func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	admin, err := h.store.GetAdminByUsername(r.Context(), req.Username)
	if err != nil {
		writeLoginFailure(w)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)) != nil {
		writeLoginFailure(w)
		return
	}

	token, expiresAt, err := h.jwt.GenerateToken(admin)
	if err != nil {
		Error(w, err)
		return
	}
	logger.Info("admin logged in", "username", admin.Username)

	OK(w, map[string]any{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"username":  admin.Username,
	})
}

// me reports the authenticated principal, mainly for UI session checks.
func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	auth := authz.FromContext(r.Context())
	if !auth.Authenticated {
		writeJSON(w, http.StatusUnauthorized, Envelope{
			Code:    "unauthorized",
			Message: "authentication required",
			Success: false,
		})
		return
	}
	OK(w, map[string]any{
		"principal": auth.PrincipalClass(),
		"admin":     auth.IsAdmin(),
	})
}

func writeLoginFailure(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, Envelope{
		Code:    "unauthorized",
		Message: "invalid username or password",
		Success: false,
	})
}
