package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookieConfigFor(t *testing.T) {
	tests := []struct {
		host       string
		wantSecure bool
		wantSite   http.SameSite
	}{
		{"localhost:5173", false, http.SameSiteLaxMode},
		{"127.0.0.1", false, http.SameSiteLaxMode},
		{"app.localhost", false, http.SameSiteLaxMode},
		{"traf3li.com", true, http.SameSiteStrictMode},
		{"api.traf3li.com:443", true, http.SameSiteStrictMode},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			cfg := CookieConfigFor(tt.host)
			if cfg.Secure != tt.wantSecure || cfg.SameSite != tt.wantSite {
				t.Errorf("CookieConfigFor(%q) = %+v", tt.host, cfg)
			}
		})
	}
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestSetAuthCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetAuthCookies(rec, TokenPair{AccessToken: "a", RefreshToken: "r"}, CookieConfigFor("traf3li.com"))

	got := cookiesByName(rec)
	access, refresh := got[AccessCookieName], got[RefreshCookieName]
	if access == nil || refresh == nil {
		t.Fatalf("cookies = %v", got)
	}
	if access.Path != "/" || access.MaxAge != 900 || !access.HttpOnly || !access.Secure {
		t.Errorf("access cookie = %+v", access)
	}
	if refresh.Path != RefreshCookiePath || refresh.MaxAge != 7*24*3600 || !refresh.HttpOnly {
		t.Errorf("refresh cookie = %+v", refresh)
	}
	if access.SameSite != http.SameSiteStrictMode {
		t.Errorf("SameSite = %v", access.SameSite)
	}
}

func TestClearAuthCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearAuthCookies(rec, CookieConfigFor("localhost"))

	got := cookiesByName(rec)
	if c := got[AccessCookieName]; c == nil || c.MaxAge >= 0 || c.Path != "/" {
		t.Errorf("access cookie = %+v", c)
	}
	if c := got[RefreshCookieName]; c == nil || c.MaxAge >= 0 || c.Path != RefreshCookiePath {
		t.Errorf("refresh cookie = %+v", c)
	}
}
