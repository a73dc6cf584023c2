// Package push covers both ends of web push notifications.
//
// On the worker side, ParsePayload and BuildNotification turn a push
// message into a notification, and HandleClick routes a click to an open
// window or a new one.
//
// On the page side, Manager keeps the browser subscription and the backend
// record in step: Subscribe creates or re-syncs, Unsubscribe cancels, and
// Init re-syncs on startup when permission was already granted.
//
// On the backend, Server exposes the subscription API over echo, Store
// keeps subscription records, and Sender delivers encrypted messages with
// VAPID, pruning subscriptions the push service reports as gone.
package push
