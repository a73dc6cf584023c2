// Package auth implements the backend side of cookie-based sessions: HS256
// access and refresh tokens, the HttpOnly cookies that carry them, and HTTP
// middleware that turns a valid access token into an Identity.
//
// Access tokens live 15 minutes and refresh tokens 7 days. Both are signed
// with separate secrets, carry issuer "traf3li", audience "traf3li-users", a
// random jti, and a "type" claim so that one kind can never be accepted in
// place of the other.
//
// Failures are answered with the JSON error shape the API client understands:
// 401 responses carry code UNAUTHORIZED and 403 responses carry code
// INSUFFICIENT_PERMISSION.
package auth
