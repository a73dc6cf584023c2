package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength bounds a key: a URL plus its serialized query parameters.
const MaxKeyLength = 2048

var (
	ErrNilCache   = errors.New("cache: nil cache")
	ErrInvalidKey = errors.New("cache: empty key or key with line breaks")
	ErrKeyTooLong = errors.New("cache: key longer than MaxKeyLength")
)

// Cache stores GET response bodies for a bounded time. Implementations are
// safe for concurrent use; concurrent Sets of one key are last-write-wins.
// Nothing is invalidated automatically when the API mutates data; callers
// that need fresh reads call Delete or Clear.
type Cache interface {
	// Get returns the body stored under key, or false when it is missing
	// or expired. It never fails; a backend error reads as a miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value for ttl. A ttl <= 0 stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes the keys containing pattern, or all keys when pattern
	// is empty, and reports how many went.
	Clear(ctx context.Context, pattern string) (int, error)
}

// ValidateKey rejects keys that are blank, too long, or span lines.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "", strings.ContainsAny(key, "\r\n"):
		return ErrInvalidKey
	case len(key) > MaxKeyLength:
		return ErrKeyTooLong
	}
	return nil
}
