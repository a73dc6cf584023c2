package auth

import (
	"context"
	"net/http"
)

// Authenticator validates credentials and returns an identity.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Authenticate returns (nil, error) for internal errors and
//     (AuthResult, nil) for rejected credentials.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Supports returns true if the request carries credentials this
	// authenticator understands.
	Supports(ctx context.Context, req *AuthRequest) bool

	// Authenticate validates credentials and returns a result.
	Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error)
}

// AuthRequest contains the information needed for authentication.
type AuthRequest struct {
	// Headers contains HTTP headers.
	Headers http.Header

	// Cookies maps cookie names to values.
	Cookies map[string]string

	// Resource is the request path.
	Resource string
}

// NewAuthRequest extracts headers and cookies from r.
func NewAuthRequest(r *http.Request) *AuthRequest {
	req := &AuthRequest{
		Headers:  r.Header,
		Cookies:  make(map[string]string),
		Resource: r.URL.Path,
	}
	for _, c := range r.Cookies() {
		if _, dup := req.Cookies[c.Name]; !dup {
			req.Cookies[c.Name] = c.Value
		}
	}
	return req
}

// GetHeader returns the first value for a header, or empty string.
func (r *AuthRequest) GetHeader(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(key)
}

// GetCookie returns a cookie value, or empty string.
func (r *AuthRequest) GetCookie(name string) string {
	return r.Cookies[name]
}

// AuthResult is the result of an authentication attempt.
type AuthResult struct {
	// Authenticated is true if authentication succeeded.
	Authenticated bool

	// Identity is the authenticated identity (only if Authenticated=true).
	Identity *Identity

	// Error is the authentication error (only if Authenticated=false).
	Error error

	// Method indicates where the credentials were found.
	Method AuthMethod
}

// AuthSuccess creates a successful authentication result.
func AuthSuccess(identity *Identity) *AuthResult {
	return &AuthResult{
		Authenticated: true,
		Identity:      identity,
		Method:        identity.Method,
	}
}

// AuthFailure creates a failed authentication result.
func AuthFailure(err error, method AuthMethod) *AuthResult {
	return &AuthResult{
		Error:  err,
		Method: method,
	}
}
