package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultSignInPath is where a 401 sends the user.
const DefaultSignInPath = "/sign-in"

// Session is the page-side login state the client acts on when the backend
// rejects the session.
type Session interface {
	// ClearUser removes the locally cached current user.
	ClearUser(ctx context.Context)

	// CurrentPath returns the path the user is on.
	CurrentPath() string

	// Redirect navigates to path.
	Redirect(ctx context.Context, path string)
}

// NoticeLevel is the severity of a user-visible notice.
type NoticeLevel string

// Notice levels.
const (
	NoticeError   NoticeLevel = "error"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is a dismissible message shown to the user.
type Notice struct {
	Level       NoticeLevel
	Title       string
	Description string
	Duration    time.Duration
}

// Notifier shows notices. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// SessionWarning reports that the server session is about to expire.
type SessionWarning struct {
	Remaining time.Duration
	Idle      bool
	Absolute  bool
}

// Session warning headers sent by the backend.
const (
	HeaderIdleWarning       = "X-Session-Idle-Warning"
	HeaderIdleRemaining     = "X-Session-Idle-Remaining"
	HeaderAbsoluteWarning   = "X-Session-Absolute-Warning"
	HeaderAbsoluteRemaining = "X-Session-Absolute-Remaining"
)

// ParseSessionWarning reads the session warning headers. The remaining time
// is the smaller of the idle and absolute values.
func ParseSessionWarning(h http.Header) (SessionWarning, bool) {
	w := SessionWarning{
		Idle:     h.Get(HeaderIdleWarning) == "true",
		Absolute: h.Get(HeaderAbsoluteWarning) == "true",
	}
	if !w.Idle && !w.Absolute {
		return SessionWarning{}, false
	}

	w.Remaining = -1
	for _, name := range []string{HeaderIdleRemaining, HeaderAbsoluteRemaining} {
		secs, err := strconv.Atoi(h.Get(name))
		if err != nil {
			continue
		}
		if d := time.Duration(secs) * time.Second; w.Remaining < 0 || d < w.Remaining {
			w.Remaining = d
		}
	}
	if w.Remaining < 0 {
		w.Remaining = 0
	}
	return w, true
}

// RateLimitInfo mirrors the X-RateLimit-* headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     int64
}

// ParseRateLimit reads the rate limit headers. All three must be present.
func ParseRateLimit(h http.Header) (RateLimitInfo, bool) {
	limit, err1 := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	remaining, err2 := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	reset, err3 := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return RateLimitInfo{}, false
	}
	return RateLimitInfo{Limit: limit, Remaining: remaining, Reset: reset}, true
}

// DefaultRetryAfter applies when a 429 carries no usable Retry-After.
const DefaultRetryAfter = 60 * time.Second

// ParseRetryAfter accepts delta seconds or an HTTP date. The result is never
// shorter than one second.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 1)) * time.Second
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return DefaultRetryAfter
	}
	d := t.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
