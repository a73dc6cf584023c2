package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Configuration errors.
var (
	ErrMissingBaseURL = errors.New("client: base URL is required")
	ErrInvalidBaseURL = errors.New("client: base URL must be absolute")
)

// Code is a machine-readable error code carried by APIError.
type Code string

// Error codes. Codes sent by the backend are passed through unchanged.
const (
	CodeNetwork                Code = "NETWORK_ERROR"
	CodeTimeout                Code = "TIMEOUT"
	CodeCancelled              Code = "CANCELLED"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeSessionIdleTimeout     Code = "SESSION_IDLE_TIMEOUT"
	CodeSessionAbsoluteTimeout Code = "SESSION_ABSOLUTE_TIMEOUT"
	CodeInsufficientPermission Code = "INSUFFICIENT_PERMISSION"
	CodeAccountLocked          Code = "ACCOUNT_LOCKED"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeCircuitOpen            Code = "CIRCUIT_OPEN"
	CodeInvalidRequest         Code = "INVALID_REQUEST"
)

// FieldError is one entry of a validation error list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is the only error shape the client returns. Status is 0 when no
// response was received.
type APIError struct {
	Status    int
	Message   string
	Code      Code
	RequestID string
	Errors    []FieldError

	// RetryAfter is set for 429 and open-circuit errors.
	RetryAfter time.Duration

	// RemainingMinutes is set for 423 account-locked errors.
	RemainingMinutes int

	// Reason is the backend's session termination reason, if any.
	Reason string

	cause error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("client: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("client: %d: %s", e.Status, e.Message)
}

// Unwrap returns the transport error behind the failure, if any.
func (e *APIError) Unwrap() error { return e.cause }

// MarshalJSON encodes the error in the {status, message, error: true} shape.
func (e *APIError) MarshalJSON() ([]byte, error) {
	type wire struct {
		Status           int          `json:"status"`
		Message          string       `json:"message"`
		Error            bool         `json:"error"`
		Code             Code         `json:"code,omitempty"`
		RequestID        string       `json:"requestId,omitempty"`
		Errors           []FieldError `json:"errors,omitempty"`
		RetryAfter       int          `json:"retryAfter,omitempty"`
		RemainingMinutes int          `json:"remainingTime,omitempty"`
		Reason           string       `json:"reason,omitempty"`
	}
	return json.Marshal(wire{
		Status:           e.Status,
		Message:          e.Message,
		Error:            true,
		Code:             e.Code,
		RequestID:        e.RequestID,
		Errors:           e.Errors,
		RetryAfter:       int(e.RetryAfter / time.Second),
		RemainingMinutes: e.RemainingMinutes,
		Reason:           e.Reason,
	})
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code Code) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

// statusError carries a non-success response between attempts.
type statusError struct {
	resp *Response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("client: unexpected status %d", e.resp.Status)
}
