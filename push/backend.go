package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/traf3li/clientops/client"
)

// Backend API paths, relative to the client's base URL.
const (
	SubscriptionPath   = "/users/push-subscription"
	VAPIDPublicKeyPath = "/users/vapid-public-key"
	PreferencesPath    = "/users/notification-preferences"
)

// APIBackend stores subscriptions through the resilient API client.
type APIBackend struct {
	Client *client.Client
}

var _ Backend = (*APIBackend)(nil)

type saveRequest struct {
	Subscription Subscription `json:"subscription"`
}

type deleteRequest struct {
	Endpoint string `json:"endpoint,omitempty"`
}

// StatusResponse is the body of GET /users/push-subscription.
type StatusResponse struct {
	Success      bool          `json:"success"`
	Subscribed   bool          `json:"subscribed"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

type keyResponse struct {
	Success   bool   `json:"success"`
	PublicKey string `json:"publicKey"`
}

// Save posts the subscription for the signed-in user.
func (b *APIBackend) Save(ctx context.Context, sub Subscription) error {
	if err := b.Client.Post(ctx, SubscriptionPath, saveRequest{Subscription: sub}, nil); err != nil {
		return err
	}
	return b.forgetStatus(ctx)
}

// Delete removes the subscription with endpoint, or every subscription of
// the user when endpoint is empty.
func (b *APIBackend) Delete(ctx context.Context, endpoint string) error {
	_, err := b.Client.Do(ctx, client.Request{
		Method: http.MethodDelete,
		Path:   SubscriptionPath,
		Body:   deleteRequest{Endpoint: endpoint},
	})
	if err != nil {
		return err
	}
	return b.forgetStatus(ctx)
}

// forgetStatus drops the cached GET of the subscription status.
func (b *APIBackend) forgetStatus(ctx context.Context) error {
	_, err := b.Client.ClearCache(ctx, SubscriptionPath)
	return err
}

// Status reports whether the backend holds a subscription for the user.
func (b *APIBackend) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := b.Client.Get(ctx, SubscriptionPath, nil, &out)
	return out, err
}

// PublicKey fetches the server's VAPID public key.
func (b *APIBackend) PublicKey(ctx context.Context) (string, error) {
	var out keyResponse
	if err := b.Client.Get(ctx, VAPIDPublicKeyPath, nil, &out); err != nil {
		return "", err
	}
	if out.PublicKey == "" {
		return "", fmt.Errorf("%w: empty key from backend", ErrInvalidVAPIDKey)
	}
	return out.PublicKey, nil
}

// SetPreferences replaces the user's notification preferences.
func (b *APIBackend) SetPreferences(ctx context.Context, prefs Preferences) error {
	return b.Client.Put(ctx, PreferencesPath, preferencesRequest{Preferences: prefs}, nil)
}
