package client

import (
	"net/http"
	"sync/atomic"
)

// HeaderCSRFToken carries the double-submit token on mutations.
const HeaderCSRFToken = "X-CSRF-Token"

// csrfCookieNames are checked in order; the first is what the backend sets.
var csrfCookieNames = []string{"csrfToken", "csrf-token", "XSRF-TOKEN"}

// csrfResponseHeaders may carry a fresh token when the cookie is not
// readable, as with cross-origin deployments.
var csrfResponseHeaders = []string{HeaderCSRFToken, "X-XSRF-Token"}

// csrfTokens remembers the last token seen in a response header.
type csrfTokens struct {
	last atomic.Pointer[string]
}

func (t *csrfTokens) remember(h http.Header) {
	for _, name := range csrfResponseHeaders {
		if v := h.Get(name); v != "" {
			t.last.Store(&v)
			return
		}
	}
}

func (t *csrfTokens) forget() { t.last.Store(nil) }

func (t *csrfTokens) header() string {
	if v := t.last.Load(); v != nil {
		return *v
	}
	return ""
}

// csrfToken returns the token to send: a CSRF cookie in the jar for the
// API origin, else the last token seen in a response header.
func (c *Client) csrfToken() string {
	if c.http.Jar != nil {
		cookies := c.http.Jar.Cookies(c.base)
		for _, name := range csrfCookieNames {
			for _, ck := range cookies {
				if ck.Name == name && ck.Value != "" {
					return ck.Value
				}
			}
		}
	}
	return c.csrf.header()
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
