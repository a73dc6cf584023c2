package push

import (
	"crypto/ecdh"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
)

// Keys are the client's encryption keys, base64url encoded.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a push subscription as the browser serializes it.
type Subscription struct {
	Endpoint       string `json:"endpoint"`
	ExpirationTime *int64 `json:"expirationTime,omitempty"`
	Keys           Keys   `json:"keys"`
}

// Validate checks that the subscription can be delivered to.
func (s Subscription) Validate() error {
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: endpoint %q", ErrInvalidSubscription, s.Endpoint)
	}
	if s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return fmt.Errorf("%w: missing keys", ErrInvalidSubscription)
	}
	return nil
}

func (s Subscription) webpush() *webpush.Subscription {
	return &webpush.Subscription{
		Endpoint: s.Endpoint,
		Keys: webpush.Keys{
			P256dh: s.Keys.P256dh,
			Auth:   s.Keys.Auth,
		},
	}
}

// DecodeVAPIDKey decodes a base64url VAPID public key and checks that it is
// an uncompressed P-256 point.
func DecodeVAPIDKey(key string) ([]byte, error) {
	key = strings.TrimRight(strings.TrimSpace(key), "=")
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVAPIDKey, err)
	}
	if len(raw) != 65 || raw[0] != 0x04 {
		return nil, fmt.Errorf("%w: want 65-byte uncompressed point, got %d bytes", ErrInvalidVAPIDKey, len(raw))
	}
	return raw, nil
}

// PublicKeyFor derives the base64url VAPID public key of a base64url
// private key.
func PublicKeyFor(privateKey string) (string, error) {
	privateKey = strings.TrimRight(strings.TrimSpace(privateKey), "=")
	raw, err := base64.RawURLEncoding.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("push: decode VAPID private key: %w", err)
	}
	key, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return "", fmt.Errorf("push: VAPID private key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), nil
}
