package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error codes returned in JSON error bodies.
const (
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSION"
)

// MessageNoPermission is the user-facing 403 message.
const MessageNoPermission = "ليس لديك صلاحية للوصول إلى هذا المورد"

// ErrorBody is the JSON error shape shared with the API client.
type ErrorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: true, Message: message, Code: code})
}

// RequireIdentity authenticates every request with a and stores the identity
// in the request context. Requests without valid credentials receive 401.
func RequireIdentity(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := NewAuthRequest(r)
			if !a.Supports(r.Context(), req) {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Access denied - No token provided")
				return
			}

			result, err := a.Authenticate(r.Context(), req)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "", "authentication failed")
				return
			}
			if !result.Authenticated {
				if errors.Is(result.Error, ErrTokenExpired) {
					WriteError(w, http.StatusUnauthorized, CodeTokenExpired, "Token expired")
					return
				}
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), result.Identity)))
		})
	}
}

// RequirePermission rejects requests whose identity lacks perm with 403.
// It must run after RequireIdentity.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Access denied - No token provided")
				return
			}
			if !id.HasPermission(perm) {
				WriteError(w, http.StatusForbidden, CodeInsufficientPermission, MessageNoPermission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
