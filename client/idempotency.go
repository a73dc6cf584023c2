package client

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
)

// HeaderIdempotencyKey carries the key for financial mutations.
const HeaderIdempotencyKey = "Idempotency-Key"

// FinancialPaths are the path segments whose mutations carry an
// idempotency key.
var FinancialPaths = []string{
	"/invoices",
	"/payments",
	"/expenses",
	"/bills",
	"/transactions",
	"/journal-entries",
	"/retainers",
	"/refunds",
	"/payroll",
}

func needsIdempotencyKey(method, path string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	for _, p := range FinancialPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// idempotencyKeys hands out one key per logical mutation. A resubmission of
// the same method, path, and body reuses the key until a response succeeds.
type idempotencyKeys struct {
	newKey func() string

	mu   sync.Mutex
	keys map[string]string
}

func newIdempotencyKeys(newKey func() string) *idempotencyKeys {
	return &idempotencyKeys{newKey: newKey, keys: make(map[string]string)}
}

func fingerprint(method, path string, body []byte) string {
	sum := sha256.Sum256(body)
	return method + " " + path + " " + hex.EncodeToString(sum[:8])
}

func (k *idempotencyKeys) get(method, path string, body []byte) string {
	fp := fingerprint(method, path, body)

	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.keys[fp]
	if !ok {
		key = k.newKey()
		k.keys[fp] = key
	}
	return key
}

func (k *idempotencyKeys) release(method, path string, body []byte) {
	fp := fingerprint(method, path, body)

	k.mu.Lock()
	delete(k.keys, fp)
	k.mu.Unlock()
}

func (k *idempotencyKeys) reset() {
	k.mu.Lock()
	k.keys = make(map[string]string)
	k.mu.Unlock()
}
