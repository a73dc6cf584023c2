package worker

import (
	"context"
	"net/http"
	"time"
)

// CachedResponse is a stored response.
type CachedResponse struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone returns a deep copy so callers can hand it out without sharing
// buffers.
func (r *CachedResponse) Clone() *CachedResponse {
	if r == nil {
		return nil
	}
	return &CachedResponse{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     append([]byte(nil), r.Body...),
		StoredAt: r.StoredAt,
	}
}

// Cache is one named cache of request keys to responses.
//
// Contract:
//   - Concurrency: safe for concurrent use. Concurrent Puts for one key are
//     last-write-wins.
//   - Errors: Match reports a miss as (nil, false, nil).
type Cache interface {
	Match(ctx context.Context, key string) (*CachedResponse, bool, error)
	Put(ctx context.Context, key string, resp *CachedResponse) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds named caches.
//
// Contract:
//   - Open creates the cache when it does not exist.
//   - Delete removes the cache and every entry in it.
//   - Names returns cache names sorted.
type Storage interface {
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	Names(ctx context.Context) ([]string, error)
}
