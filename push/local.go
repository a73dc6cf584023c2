package push

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// LocalPushManager is an in-process PushManager. It generates real P-256
// client keys, so its subscriptions can be delivered to by Sender when
// ServiceURL points at a push service.
type LocalPushManager struct {
	// ServiceURL is the push service base; endpoints are ServiceURL/<id>.
	ServiceURL string

	mu        sync.Mutex
	sub       *Subscription
	key       *ecdh.PrivateKey
	auth      []byte
	serverKey []byte
}

var _ PushManager = (*LocalPushManager)(nil)

// Subscription returns a copy of the current subscription, or nil.
func (p *LocalPushManager) Subscription(context.Context) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub == nil {
		return nil, nil
	}
	sub := *p.sub
	return &sub, nil
}

// Subscribe returns the existing subscription when one was made with the
// same server key; a different key is rejected, as browsers do.
func (p *LocalPushManager) Subscribe(_ context.Context, applicationServerKey []byte) (*Subscription, error) {
	if len(applicationServerKey) != 65 || applicationServerKey[0] != 0x04 {
		return nil, ErrInvalidVAPIDKey
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		if string(p.serverKey) != string(applicationServerKey) {
			return nil, fmt.Errorf("push: subscription exists with a different server key")
		}
		sub := *p.sub
		return &sub, nil
	}

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("push: generate client key: %w", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return nil, fmt.Errorf("push: generate auth secret: %w", err)
	}

	p.key = key
	p.auth = auth
	p.serverKey = append([]byte(nil), applicationServerKey...)
	p.sub = &Subscription{
		Endpoint: strings.TrimRight(p.ServiceURL, "/") + "/" + uuid.NewString(),
		Keys: Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
	sub := *p.sub
	return &sub, nil
}

// Unsubscribe drops sub if it is the current subscription.
func (p *LocalPushManager) Unsubscribe(_ context.Context, sub *Subscription) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub == nil || sub == nil || p.sub.Endpoint != sub.Endpoint {
		return false, nil
	}
	p.sub, p.key, p.auth, p.serverKey = nil, nil, nil, nil
	return true, nil
}

// Decrypt opens an aes128gcm push message body addressed to the current
// subscription, the way a browser does before raising the push event.
func (p *LocalPushManager) Decrypt(body []byte) ([]byte, error) {
	p.mu.Lock()
	key, auth := p.key, p.auth
	p.mu.Unlock()
	if key == nil {
		return nil, ErrSubscriptionNotFound
	}

	// salt(16) | record size(4) | key id length(1) | sender public key
	if len(body) < 21 {
		return nil, errors.New("push: message too short")
	}
	salt := body[:16]
	idLen := int(body[20])
	if len(body) < 21+idLen {
		return nil, errors.New("push: truncated header")
	}
	senderPub := body[21 : 21+idLen]
	ciphertext := body[21+idLen:]

	peer, err := ecdh.P256().NewPublicKey(senderPub)
	if err != nil {
		return nil, fmt.Errorf("push: sender key: %w", err)
	}
	shared, err := key.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("push: ecdh: %w", err)
	}

	info := append([]byte("WebPush: info\x00"), key.PublicKey().Bytes()...)
	info = append(info, senderPub...)
	ikm, err := derive(shared, auth, info, 32)
	if err != nil {
		return nil, err
	}
	cek, err := derive(ikm, salt, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	nonce, err := derive(ikm, salt, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("push: decrypt: %w", err)
	}

	// Last record: data | 0x02 | zero padding.
	plain = bytes.TrimRight(plain, "\x00")
	if len(plain) == 0 || plain[len(plain)-1] != 0x02 {
		return nil, errors.New("push: bad record delimiter")
	}
	return plain[:len(plain)-1], nil
}

func derive(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("push: hkdf: %w", err)
	}
	return out, nil
}

// StaticNotifications is a Notifications whose prompt always resolves to
// Answer. The first request moves State from default to Answer.
type StaticNotifications struct {
	mu     sync.Mutex
	State  Permission
	Answer Permission
	Asked  int
}

// Permission returns the current state, default when unset.
func (n *StaticNotifications) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.State == "" {
		return PermissionDefault
	}
	return n.State
}

// RequestPermission prompts only while the state is default.
func (n *StaticNotifications) RequestPermission(context.Context) (Permission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.State == "" || n.State == PermissionDefault {
		n.Asked++
		n.State = n.Answer
		if n.State == "" {
			n.State = PermissionDefault
		}
	}
	return n.State, nil
}
