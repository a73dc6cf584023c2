// Package cache provides short-lived response caching for the API client.
//
// It provides a Cache interface with memory and Redis implementations, a
// request keyer (URL plus canonical JSON of the query parameters), TTL
// policies, and a middleware that caches successful GET bodies.
//
// The cache is a convenience layer, not a source of truth. Nothing in this
// package invalidates entries when a mutation succeeds: callers that write
// data are expected to Clear the keys they know are affected.
package cache
