// Package authz turns request credentials into an AuthResult: who the caller
// is, which capability flags they hold, and which virtual path prefix they
// may touch. Results are evaluated per request and never persisted.
package authz

import (
	"context"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// AuthType identifies how a request authenticated.
type AuthType string

const (
	AuthTypeAdmin  AuthType = "admin"
	AuthTypeAPIKey AuthType = "apiKey"
	AuthTypeNone   AuthType = "none"
)

// AuthResult is the outcome of credential resolution for one request.
type AuthResult struct {
	Authenticated bool
	Type          AuthType

	// PrincipalID is the admin user ID or API key ID.
	PrincipalID string

	// Username is set for admin principals.
	Username string

	// Key is the resolved API key row, nil for admins.
	Key *models.APIKey
}

// Anonymous is the result for requests carrying no credentials.
var Anonymous = &AuthResult{Type: AuthTypeNone}

// IsAdmin reports whether the principal has unrestricted access.
func (a *AuthResult) IsAdmin() bool {
	return a.Authenticated && a.Type == AuthTypeAdmin
}

// Can reports whether the principal holds a capability flag. Admins hold all
// of them.
func (a *AuthResult) Can(p models.Permission) bool {
	if !a.Authenticated {
		return false
	}
	if a.Type == AuthTypeAdmin {
		return true
	}
	return a.Key != nil && a.Key.Has(p)
}

// AllowedPrefix returns the virtual path prefix the principal is confined to.
// Admins see everything.
func (a *AuthResult) AllowedPrefix() string {
	if a.Type == AuthTypeAPIKey && a.Key != nil && a.Key.BasicPath != "" {
		return a.Key.BasicPath
	}
	return "/"
}

// PrincipalClass keys cached listings. Every admin shares one class; API keys
// are classed by their allowed prefix since that is what scopes what a
// listing may contain.
func (a *AuthResult) PrincipalClass() string {
	switch a.Type {
	case AuthTypeAdmin:
		return "admin"
	case AuthTypeAPIKey:
		return "apikey:" + a.AllowedPrefix()
	default:
		return "anonymous"
	}
}

type contextKey string

const authContextKey contextKey = "authResult"

// WithAuth stores an AuthResult in the context.
func WithAuth(ctx context.Context, result *AuthResult) context.Context {
	return context.WithValue(ctx, authContextKey, result)
}

// FromContext retrieves the AuthResult placed by the auth middleware. Returns
// Anonymous when none is present.
func FromContext(ctx context.Context) *AuthResult {
	if result, ok := ctx.Value(authContextKey).(*AuthResult); ok {
		return result
	}
	return Anonymous
}
