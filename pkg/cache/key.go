package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

const keyPrefix = "clientrt:cache"

// Validator headers are set by the cache itself and never select an entry.
var validatorHeaders = map[string]bool{
	"If-None-Match":       true,
	"If-Modified-Since":   true,
	"If-Match":            true,
	"If-Unmodified-Since": true,
}

// Key identifies a stored response.
type Key struct {
	Method string
	URL    string

	// Header holds the per-request headers that select the representation,
	// such as a continuation token sent in a header. Two requests to the same
	// URL with different headers never share an entry.
	Header http.Header
}

// NewKey returns the key for a request without per-request headers.
func NewKey(method, rawURL string) Key {
	return Key{Method: method, URL: rawURL}
}

// RequestKey returns the key for req, including its headers.
func RequestKey(req fetch.Request) Key {
	return Key{Method: req.Method, URL: req.URL, Header: req.Header}
}

// String generates a deterministic Redis key. Query parameters are sorted so
// that equivalent URLs share an entry. Request headers are folded in as a
// digest so header values never appear in Redis key names.
//
// Example:
//
//	clientrt:cache:GET:https://svc.example.com/items?a=1&b=2
//	clientrt:cache:GET:https://svc.example.com/items:h=3f2a...
func (k Key) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = "GET"
	}
	key := keyPrefix + ":" + method + ":" + normalizeURL(k.URL)
	if digest := headerDigest(k.Header); digest != "" {
		key += ":h=" + digest
	}
	return key
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String()
}

func headerDigest(h http.Header) string {
	names := make([]string, 0, len(h))
	for name, values := range h {
		canonical := http.CanonicalHeaderKey(name)
		if validatorHeaders[canonical] || len(values) == 0 {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return ""
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(http.CanonicalHeaderKey(a), http.CanonicalHeaderKey(b))
	})

	sum := sha256.New()
	for _, name := range names {
		sum.Write([]byte(http.CanonicalHeaderKey(name)))
		for _, v := range h[name] {
			sum.Write([]byte{0})
			sum.Write([]byte(v))
		}
		sum.Write([]byte{'\n'})
	}
	return hex.EncodeToString(sum.Sum(nil)[:16])
}
