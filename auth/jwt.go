package auth

import (
	"context"
	"strings"
)

// AccessCookieName and RefreshCookieName are the session cookie names.
const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// CookieName is the cookie holding the access token.
	// Default: "accessToken"
	CookieName string

	// HeaderName is the header checked when no cookie is present.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string
}

// JWTAuthenticator validates access tokens from the session cookie, falling
// back to a bearer header for non-browser callers.
type JWTAuthenticator struct {
	config JWTConfig
	tokens *TokenIssuer
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(config JWTConfig, tokens *TokenIssuer) *JWTAuthenticator {
	if config.CookieName == "" {
		config.CookieName = AccessCookieName
	}
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	return &JWTAuthenticator{config: config, tokens: tokens}
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string {
	return "jwt"
}

// Supports returns true if the request carries a cookie or bearer token.
func (a *JWTAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	_, method := a.extract(req)
	return method != AuthMethodNone
}

// Authenticate validates the access token.
func (a *JWTAuthenticator) Authenticate(_ context.Context, req *AuthRequest) (*AuthResult, error) {
	token, method := a.extract(req)
	if method == AuthMethodNone {
		return AuthFailure(ErrMissingCredentials, method), nil
	}

	claims, err := a.tokens.ParseAccess(token)
	if err != nil {
		return AuthFailure(err, method), nil
	}

	identity := &Identity{
		Principal:   claims.UserID,
		Email:       claims.Email,
		TenantID:    claims.FirmID,
		Permissions: claims.Permissions,
		Method:      method,
		TokenID:     claims.ID,
	}
	if claims.Role != "" {
		identity.Roles = []string{claims.Role}
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	return AuthSuccess(identity), nil
}

func (a *JWTAuthenticator) extract(req *AuthRequest) (string, AuthMethod) {
	if v := req.GetCookie(a.config.CookieName); v != "" {
		return v, AuthMethodCookie
	}
	header := req.GetHeader(a.config.HeaderName)
	token, ok := strings.CutPrefix(header, a.config.TokenPrefix)
	if !ok {
		return "", AuthMethodNone
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", AuthMethodNone
	}
	return token, AuthMethodBearer
}
