package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
)

// Double-submit CSRF names shared with the API client.
const (
	CSRFCookieName = "csrfToken"
	CSRFHeaderName = "X-CSRF-Token"

	CodeCSRFInvalid = "CSRF_TOKEN_INVALID"
)

// SetCSRFCookie issues a fresh token as a script-readable cookie and echoes
// it in the response header for clients that cannot read the cookie.
func SetCSRFCookie(w http.ResponseWriter, cfg CookieConfig) string {
	token := uuid.NewString()
	c := cfg.cookie(CSRFCookieName, token, "/", int(RefreshTokenTTL.Seconds()))
	c.HttpOnly = false
	http.SetCookie(w, c)
	w.Header().Set(CSRFHeaderName, token)
	return token
}

// RequireCSRF rejects mutations whose header token does not match the
// cookie with 403. Safe methods pass through.
func RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie(CSRFCookieName)
		header := r.Header.Get(CSRFHeaderName)
		if err != nil || cookie.Value == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			WriteError(w, http.StatusForbidden, CodeCSRFInvalid, "رمز الحماية غير صالح. يرجى تحديث الصفحة")
			return
		}
		next.ServeHTTP(w, r)
	})
}
