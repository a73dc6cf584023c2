package worker

import (
	"net/http"
	"path"
	"slices"
	"strings"
)

// Strategy is how a request is answered.
type Strategy int

// Strategies.
const (
	PassThrough Strategy = iota
	CacheFirst
	NetworkFirst
	StaleWhileRevalidate
)

func (s Strategy) String() string {
	switch s {
	case PassThrough:
		return "pass-through"
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	default:
		return "unknown"
	}
}

// APIPrefix marks dynamic requests that are never cached.
const APIPrefix = "/api/"

var (
	fontExts   = []string{".woff", ".woff2", ".ttf", ".otf", ".eot"}
	imageExts  = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".avif"}
	scriptExts = []string{".css", ".js", ".mjs"}
)

// Route picks the strategy for r. Rules apply in order: non-GET, API,
// WebSocket, fonts, images, scripts and styles, then everything else.
func Route(r *http.Request) Strategy {
	switch {
	case r.Method != http.MethodGet:
		return PassThrough
	case strings.HasPrefix(r.URL.Path, APIPrefix):
		return PassThrough
	case isWebSocket(r):
		return PassThrough
	}

	ext := strings.ToLower(path.Ext(r.URL.Path))
	switch {
	case slices.Contains(fontExts, ext), slices.Contains(imageExts, ext):
		return CacheFirst
	case slices.Contains(scriptExts, ext):
		return StaleWhileRevalidate
	default:
		return NetworkFirst
	}
}

func isWebSocket(r *http.Request) bool {
	if r.URL.Scheme == "ws" || r.URL.Scheme == "wss" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// isNavigation reports whether r loads a page rather than a subresource.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// cacheKey identifies a same-origin request in a cache.
func cacheKey(r *http.Request) string {
	return r.URL.RequestURI()
}
