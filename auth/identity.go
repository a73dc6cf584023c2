package auth

import (
	"slices"
	"time"
)

// AuthMethod indicates where the credentials were found.
type AuthMethod string

const (
	AuthMethodNone   AuthMethod = "none"
	AuthMethodCookie AuthMethod = "jwt_cookie"
	AuthMethodBearer AuthMethod = "jwt_bearer"
)

// Identity represents an authenticated user.
type Identity struct {
	// Principal is the user ID.
	Principal string

	// Email is the user's email, when the token carries it.
	Email string

	// TenantID is the firm the user belongs to.
	TenantID string

	// Roles are the roles assigned to this identity.
	Roles []string

	// Permissions are explicit permissions granted to this identity.
	// The single permission "*" grants everything.
	Permissions []string

	// Method indicates how authentication was performed.
	Method AuthMethod

	// TokenID is the jti of the access token.
	TokenID string

	// ExpiresAt is when the access token expires.
	ExpiresAt time.Time

	// IssuedAt is when the access token was issued.
	IssuedAt time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return id != nil && slices.Contains(id.Roles, role)
}

// HasPermission checks if the identity holds perm or the "*" wildcard.
func (id *Identity) HasPermission(perm string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Permissions, perm) || slices.Contains(id.Permissions, "*")
}

// IsExpired reports whether the identity has expired at now.
func (id *Identity) IsExpired(now time.Time) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(id.ExpiresAt)
}
