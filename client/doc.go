// Package client is the single chokepoint for calls to the backend API.
//
// Every request goes through the same pipeline:
//
//   - GET bodies are cached for two minutes, keyed by URL plus the JSON of
//     the query parameters. Identical concurrent GETs share one fetch.
//   - Transient failures (no response, or a 5xx) are retried twice, after
//     1s and then 2s. Each attempt is bounded by a 15s timeout.
//   - A circuit breaker per endpoint group sheds load from a failing
//     backend. Routes under /auth/ bypass it.
//   - Every failure becomes an *APIError with a localized message.
//
// Side effects happen through the Session and Notifier collaborators: a 401
// clears the current user and redirects to the sign-in page (once, however
// many requests fail together), and a permission 403 raises a toast.
//
// The cache is never invalidated by mutations. Callers that change data
// call ClearCache with a pattern for the keys they know are stale.
package client
