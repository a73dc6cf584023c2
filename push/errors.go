package push

import "errors"

// Sentinel errors for push operations.
var (
	ErrUnsupported          = errors.New("push: not supported in this environment")
	ErrPermissionDenied     = errors.New("push: notification permission not granted")
	ErrInvalidSubscription  = errors.New("push: invalid subscription")
	ErrInvalidVAPIDKey      = errors.New("push: invalid VAPID public key")
	ErrSubscriptionNotFound = errors.New("push: subscription not found")
	ErrMissingUser          = errors.New("push: user id is required")
)
