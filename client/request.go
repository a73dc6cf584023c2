package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Request describes one logical API call.
type Request struct {
	// Method defaults to GET.
	Method string

	// Path is relative to the base URL, e.g. "/cases".
	Path string

	// Params are sent as the query string and form part of the cache key.
	Params map[string]any

	// Body is JSON-encoded. A []byte or json.RawMessage is sent as is.
	Body any

	// Header adds or overrides request headers.
	Header http.Header
}

// Response is a successful API response. Responses served from the cache or
// shared between deduplicated GETs must not be modified.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Cached is true when the body came from the GET cache.
	Cached bool
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// target is a resolved request URL.
type target struct {
	// endpoint is the absolute URL without the query string.
	endpoint string
	// path is the full URL path, used for routing decisions.
	path  string
	query string
}

func (t target) String() string {
	if t.query == "" {
		return t.endpoint
	}
	return t.endpoint + "?" + t.query
}

func resolveTarget(base *url.URL, path string, params map[string]any) (target, error) {
	if strings.Contains(path, "://") {
		return target{}, fmt.Errorf("client: path %q must be relative", path)
	}
	rel, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return target{}, fmt.Errorf("client: parse path: %w", err)
	}

	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + rel.Path
	u.RawQuery = ""
	u.Fragment = ""

	q := rel.Query()
	for k, v := range params {
		switch vv := v.(type) {
		case nil:
		case []string:
			for _, s := range vv {
				q.Add(k, s)
			}
		case []any:
			for _, s := range vv {
				q.Add(k, fmt.Sprint(s))
			}
		default:
			q.Add(k, fmt.Sprint(vv))
		}
	}

	return target{endpoint: u.String(), path: u.Path, query: q.Encode()}, nil
}

// EndpointGroup names the circuit breaker a path belongs to: the first
// segment after any /api and /vN prefix.
func EndpointGroup(path string) string {
	segments := slices.DeleteFunc(strings.Split(path, "/"), func(s string) bool { return s == "" })
	for len(segments) > 1 && (segments[0] == "api" || isVersion(segments[0])) {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return "/"
	}
	return "/" + segments[0]
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// bypassesCircuit reports whether path is an auth route. Users must always
// be able to sign in, so these never trip or consult a breaker.
func bypassesCircuit(path string) bool {
	return strings.Contains(path, "/auth/")
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
		return data, nil
	}
}
