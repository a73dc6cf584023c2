package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Keyer generates deterministic cache keys for requests.
//
// Contract:
//   - Determinism: same inputs must produce same key, regardless of map iteration order.
//   - Concurrency: implementations must be safe for concurrent use.
//   - Readability: the request URL must appear verbatim in the key so that
//     Clear can match on URL substrings.
type Keyer interface {
	// Key generates a cache key from a request URL and its query parameters.
	Key(rawURL string, params any) (string, error)
}

// RequestKeyer builds keys as the URL followed by the JSON of the parameters.
type RequestKeyer struct{}

// NewRequestKeyer creates a new request keyer.
func NewRequestKeyer() *RequestKeyer {
	return &RequestKeyer{}
}

// Key generates a deterministic cache key.
// Format: <url><json(params)>, where nil or empty params serialize as {}.
func (k *RequestKeyer) Key(rawURL string, params any) (string, error) {
	canonical, err := canonicalize(params)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize params: %w", err)
	}
	return rawURL + string(canonical), nil
}

// canonicalize produces a deterministic JSON representation of params.
// encoding/json sorts map keys, so maps of any key order serialize equally.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("{}"), nil
	case url.Values:
		if len(val) == 0 {
			return []byte("{}"), nil
		}
		return json.Marshal(map[string][]string(val))
	case map[string]string:
		if len(val) == 0 {
			return []byte("{}"), nil
		}
	case map[string]any:
		if len(val) == 0 {
			return []byte("{}"), nil
		}
	}
	return json.Marshal(v)
}

// Ensure RequestKeyer implements Keyer
var _ Keyer = (*RequestKeyer)(nil)
