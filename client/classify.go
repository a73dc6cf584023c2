package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/traf3li/clientops/resilience"
)

// backendError is the union of the error bodies the backend sends.
type backendError struct {
	Message       string          `json:"message"`
	Code          string          `json:"code"`
	Reason        string          `json:"reason"`
	RequestID     string          `json:"requestId"`
	Errors        []FieldError    `json:"errors"`
	RemainingTime int             `json:"remainingTime"`
	Error         json.RawMessage `json:"error"`
	Meta          struct {
		RequestID string `json:"requestId"`
	} `json:"meta"`
}

// nestedError is the {error: {code, message, messageAr}} form.
type nestedError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	MessageAr string `json:"messageAr"`
}

func parseBackendError(body []byte) backendError {
	var be backendError
	_ = json.Unmarshal(body, &be)
	return be
}

func (be backendError) nested() nestedError {
	var n nestedError
	if len(be.Error) > 0 && be.Error[0] == '{' {
		_ = json.Unmarshal(be.Error, &n)
	}
	return n
}

// message prefers the Arabic nested message, then the nested message, then
// the root message. Text that looks like a stack trace is dropped.
func (be backendError) message() string {
	n := be.nested()
	for _, m := range []string{n.MessageAr, n.Message, be.Message} {
		if m != "" && !strings.Contains(m, "\n") {
			return m
		}
	}
	return ""
}

func (be backendError) code() Code {
	if n := be.nested(); n.Code != "" {
		return Code(n.Code)
	}
	return Code(be.Code)
}

func (be backendError) requestID() string {
	if be.Meta.RequestID != "" {
		return be.Meta.RequestID
	}
	return be.RequestID
}

// isTransient reports whether err warrants another attempt: no response at
// all, or a 5xx.
func isTransient(err error) bool {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.resp.Status >= 500 && se.resp.Status < 600
	case errors.Is(err, context.Canceled):
		return false
	default:
		return err != nil
	}
}

// isCircuitFailure counts server errors and rate limiting against a
// breaker. Client errors and network failures do not.
func isCircuitFailure(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.resp.Status >= 500 || se.resp.Status == http.StatusTooManyRequests
}

// permissionPhrases are message fragments that signal a permission denial
// from backends that do not send a code yet.
var permissionPhrases = []string{
	"ليس لديك صلاحية",
	"insufficient permission",
	"do not have permission",
	"don't have permission",
}

func isPermissionDenied(e *APIError) bool {
	if e.Code == CodeInsufficientPermission {
		return true
	}
	lower := strings.ToLower(e.Message)
	for _, p := range permissionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isSessionTimeout(code Code) bool {
	return code == CodeSessionIdleTimeout || code == CodeSessionAbsoluteTimeout
}

// normalize turns any failure from the pipeline into an *APIError, running
// the session and notification side effects on the way.
func (c *Client) normalize(ctx context.Context, t target, group string, err error) *APIError {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return c.fromResponse(ctx, t, se.resp)

	case errors.Is(err, resilience.ErrCircuitOpen):
		wait := c.circuits.Breaker(group).RetryAfter()
		return &APIError{
			Status:     http.StatusServiceUnavailable,
			Code:       CodeCircuitOpen,
			Message:    c.loc.text(msgCircuitOpen, c.loc.duration(wait)),
			RetryAfter: wait,
			cause:      err,
		}

	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return &APIError{Code: CodeCancelled, Message: c.loc.text(msgCancelled), cause: err}

	case errors.Is(err, resilience.ErrTimeout):
		return &APIError{Code: CodeTimeout, Message: c.loc.text(msgTimeout), cause: err}

	default:
		return &APIError{Code: CodeNetwork, Message: c.loc.text(msgNetwork), cause: err}
	}
}

func (c *Client) fromResponse(ctx context.Context, t target, r *Response) *APIError {
	be := parseBackendError(r.Body)
	e := &APIError{
		Status:    r.Status,
		Message:   be.message(),
		Code:      be.code(),
		RequestID: be.requestID(),
		Errors:    be.Errors,
		Reason:    be.Reason,
	}

	switch r.Status {
	case http.StatusUnauthorized:
		c.unauthorized(ctx, t, e)

	case http.StatusForbidden:
		if isPermissionDenied(e) {
			if e.Message == "" {
				e.Message = c.loc.text(msgPermissionDenied)
			}
			c.notify(ctx, Notice{
				Level:       NoticeError,
				Title:       e.Message,
				Description: c.loc.text(msgPermissionHint),
				Duration:    5 * time.Second,
			})
		}

	case http.StatusLocked:
		minutes := be.RemainingTime
		if minutes <= 0 {
			minutes = 15
		}
		e.Code = CodeAccountLocked
		e.RemainingMinutes = minutes
		if e.Message == "" {
			e.Message = c.loc.text(msgAccountLocked, strconv.Itoa(minutes))
		}
		c.notify(ctx, Notice{
			Level:       NoticeError,
			Title:       e.Message,
			Description: c.loc.text(msgAccountLockedHint, strconv.Itoa(minutes)),
			Duration:    10 * time.Second,
		})

	case http.StatusTooManyRequests:
		e.Code = CodeRateLimited
		e.RetryAfter = ParseRetryAfter(r.Header.Get("Retry-After"), c.now())
		wait := c.loc.duration(e.RetryAfter)
		if e.Message == "" {
			e.Message = c.loc.text(msgRateLimited, wait)
		}
		c.notify(ctx, Notice{
			Level:       NoticeError,
			Title:       e.Message,
			Description: c.loc.text(msgRateLimitedHint, wait),
			Duration:    min(e.RetryAfter, 10*time.Second),
		})
	}

	if e.Message == "" {
		e.Message = c.loc.text(msgUnexpected)
	}
	return e
}

// unauthorized handles a 401. The user marker is cleared and the redirect
// issued at most once until Reset, however many requests fail together.
// Auth routes are exempt so a failed sign-in does not redirect.
func (c *Client) unauthorized(ctx context.Context, t target, e *APIError) {
	timeout := isSessionTimeout(e.Code)
	switch {
	case timeout && (e.Code == CodeSessionIdleTimeout || e.Reason == "idle_timeout"):
		e.Message = c.loc.text(msgSessionIdle)
	case timeout:
		e.Message = c.loc.text(msgSessionExpired)
	case e.Code == "":
		e.Code = CodeUnauthorized
	}
	if e.Message == "" {
		e.Message = c.loc.text(msgSessionExpired)
	}

	if bypassesCircuit(t.path) || c.session == nil {
		return
	}
	if !c.redirected.CompareAndSwap(false, true) {
		return
	}

	c.session.ClearUser(ctx)
	if strings.HasPrefix(c.session.CurrentPath(), c.signInPath) {
		return
	}

	dest := c.signInPath
	if timeout {
		reason := e.Reason
		if reason == "" {
			reason = "session_expired"
		}
		dest += "?reason=" + reason
		c.notify(ctx, Notice{
			Level:       NoticeWarning,
			Title:       e.Message,
			Description: c.loc.text(msgRedirecting),
			Duration:    3 * time.Second,
		})
	}
	c.logger.Warn(ctx, "session rejected, redirecting to sign-in")
	c.session.Redirect(ctx, dest)
}

func (c *Client) notify(ctx context.Context, n Notice) {
	if c.notifier != nil {
		c.notifier.Notify(ctx, n)
	}
}
