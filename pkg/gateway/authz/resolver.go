package authz

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatefs/gatefs/internal/logger"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// CredentialStore is the metadata-store subset the resolver needs.
type CredentialStore interface {
	GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
	GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error)
}

// Resolver parses request credentials into AuthResults.
//
// Three schemes are accepted:
//   - "Bearer <jwt>": an admin token.
//   - "ApiKey <key>": an API key value.
//   - "Basic <user:pass>": when user equals pass the value is treated as an
//     API key (the convention WebDAV clients use, since they can only send
//     Basic); otherwise it is an admin username and password.
type Resolver struct {
	store CredentialStore
	jwt   *JWTService
}

// NewResolver creates a credential resolver.
func NewResolver(store CredentialStore, jwt *JWTService) *Resolver {
	return &Resolver{store: store, jwt: jwt}
}

// Authenticate resolves an Authorization header value. An empty header yields
// Anonymous with no error; malformed or rejected credentials yield an
// unauthorized error.
func (r *Resolver) Authenticate(ctx context.Context, authorization string) (*AuthResult, error) {
	if authorization == "" {
		return Anonymous, nil
	}

	scheme, value, found := strings.Cut(authorization, " ")
	if !found || value == "" {
		return nil, gwerrors.New(gwerrors.ErrUnauthorized, "malformed authorization header")
	}

	switch {
	case strings.EqualFold(scheme, "Bearer"):
		return r.resolveAdminToken(value)
	case strings.EqualFold(scheme, "ApiKey"):
		return r.resolveAPIKey(ctx, value)
	case strings.EqualFold(scheme, "Basic"):
		return r.resolveBasic(ctx, value)
	default:
		return nil, gwerrors.New(gwerrors.ErrUnauthorized, "unsupported authorization scheme")
	}
}

func (r *Resolver) resolveAdminToken(token string) (*AuthResult, error) {
	claims, err := r.jwt.ValidateToken(token)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.ErrUnauthorized, "invalid or expired token", err)
	}
	return &AuthResult{
		Authenticated: true,
		Type:          AuthTypeAdmin,
		PrincipalID:   claims.AdminID,
		Username:      claims.Username,
	}, nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, value string) (*AuthResult, error) {
	key, err := r.store.GetAPIKeyByKey(ctx, value)
	if err != nil {
		if errors.Is(err, models.ErrAPIKeyNotFound) || errors.Is(err, models.ErrAPIKeyExpired) {
			return nil, gwerrors.Wrap(gwerrors.ErrUnauthorized, "invalid api key", err)
		}
		return nil, err
	}

	// Touch is best effort; an unrecorded last_used never fails a request.
	if err := r.store.TouchAPIKey(ctx, key.ID, time.Now()); err != nil {
		logger.Warn("failed to record api key usage", "key_id", key.ID, "error", err)
	}

	return &AuthResult{
		Authenticated: true,
		Type:          AuthTypeAPIKey,
		PrincipalID:   key.ID,
		Key:           key,
	}, nil
}

func (r *Resolver) resolveBasic(ctx context.Context, encoded string) (*AuthResult, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, gwerrors.New(gwerrors.ErrUnauthorized, "malformed basic credentials")
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, gwerrors.New(gwerrors.ErrUnauthorized, "malformed basic credentials")
	}

	if username == password {
		return r.resolveAPIKey(ctx, password)
	}

	admin, err := r.store.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrAdminNotFound) {
			return nil, gwerrors.New(gwerrors.ErrUnauthorized, "invalid credentials")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, gwerrors.New(gwerrors.ErrUnauthorized, "invalid credentials")
	}

	return &AuthResult{
		Authenticated: true,
		Type:          AuthTypeAdmin,
		PrincipalID:   admin.ID,
		Username:      admin.Username,
	}, nil
}
