// Package worker runs the offline worker: a caching layer in front of the
// web origin with the install, activate, and fetch lifecycle of a browser
// service worker.
//
// A Worker moves through three states. While installing it opens the
// current named cache and pre-caches the application shell. While
// activating it deletes every other cache and claims its clients. Once
// active it answers requests using a strategy picked per resource:
//
//   - non-GET, /api/ and WebSocket requests go to the network untouched
//   - fonts and images are served cache-first
//   - scripts and stylesheets are served stale-while-revalidate
//   - everything else is served network-first
//
// Pages talk to the worker through messages. SKIP_WAITING activates an
// installed worker immediately.
package worker
