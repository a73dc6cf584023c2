package auth

import "errors"

// Sentinel errors for authentication and authorization.
var (
	// Configuration errors
	ErrMissingSecret = errors.New("auth: signing secret is required")
	ErrReusedSecret  = errors.New("auth: access and refresh secrets must differ")

	// Authentication errors
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrWrongTokenType     = errors.New("auth: wrong token type")

	// Authorization errors
	ErrForbidden = errors.New("auth: access denied")
)
