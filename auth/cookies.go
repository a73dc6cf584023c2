package auth

import (
	"net"
	"net/http"
	"strings"
)

// RefreshCookiePath restricts the refresh cookie to the auth endpoints.
const RefreshCookiePath = "/api/auth"

// CookieConfig controls the attributes of session cookies.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// CookieConfigFor returns the attributes used for host. Local development
// relaxes SameSite to Lax and drops Secure so plain http works.
func CookieConfigFor(host string) CookieConfig {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".localhost") {
		return CookieConfig{SameSite: http.SameSiteLaxMode}
	}
	return CookieConfig{Secure: true, SameSite: http.SameSiteStrictMode}
}

// SetAuthCookies writes both session cookies for pair.
func SetAuthCookies(w http.ResponseWriter, pair TokenPair, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(AccessCookieName, pair.AccessToken, "/", int(AccessTokenTTL.Seconds())))
	http.SetCookie(w, cfg.cookie(RefreshCookieName, pair.RefreshToken, RefreshCookiePath, int(RefreshTokenTTL.Seconds())))
}

// ClearAuthCookies expires both session cookies. Paths must match the ones
// used when setting them or the browser keeps the originals.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(AccessCookieName, "", "/", -1))
	http.SetCookie(w, cfg.cookie(RefreshCookieName, "", RefreshCookiePath, -1))
}

func (cfg CookieConfig) cookie(name, value, path string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}
}
