// Package fetch defines the request/response boundary shared by the
// pagination and polling engines.
//
// Neither engine performs transport or serialization itself. They only decide
// when the next request happens and with what request-state; a Fetcher
// supplied by the caller (generated client code, or pkg/client) issues it.
package fetch

import (
	"context"
	"net/http"
)

// Request is a fully-formed description of one HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest creates a request-state with an empty header set.
func NewRequest(method, url string, body []byte) Request {
	return Request{
		Method: method,
		URL:    url,
		Header: http.Header{},
		Body:   body,
	}
}

// Clone returns a deep copy of the request-state.
func (r Request) Clone() Request {
	out := Request{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header.Clone(),
	}
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Response is the raw result of one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Request is the request-state that produced this response.
	Request Request
}

// Fetcher issues exactly one request and returns its raw response.
// Failures must be reported as errors, preferably *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) (*Response, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
