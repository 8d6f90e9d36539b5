package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Sequence errors shared by the pagination and polling engines.
var (
	// ErrExhausted is returned when a caller pulls from a sequence that has
	// already ended with an error.
	ErrExhausted = errors.New("sequence exhausted")

	// ErrClosed is returned when a caller pulls from a sequence after Close.
	ErrClosed = errors.New("sequence closed")

	// ErrNoResponse is wrapped when a Fetcher returns neither a response nor
	// an error.
	ErrNoResponse = errors.New("fetcher returned no response")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassThrottled represents 429 responses.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response that could not be deserialized.
	ErrorClassDecode ErrorClass = "decode"
)

// FetchError is a transport or deserialization failure on a single request.
// The runtime never retries it.
type FetchError struct {
	Class      ErrorClass
	StatusCode int
	Method     string
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s error (status %d): %v", e.Method, e.URL, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.URL, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to an error class.
// It returns "" for non-error codes.
func ClassifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorClassThrottled
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// StatusError builds a FetchError for an unsuccessful response.
func StatusError(resp *Response) *FetchError {
	return &FetchError{
		Class:      ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		Err:        fmt.Errorf("unexpected status %s", http.StatusText(resp.StatusCode)),
	}
}

// DecodeError wraps a deserialization failure of resp.
func DecodeError(resp *Response, err error) *FetchError {
	return &FetchError{
		Class:      ErrorClassDecode,
		StatusCode: resp.StatusCode,
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		Err:        err,
	}
}

// NoResponseError reports a Fetcher that returned (nil, nil) for req.
func NoResponseError(req Request) *FetchError {
	return &FetchError{
		Class:  ErrorClassDecode,
		Method: req.Method,
		URL:    req.URL,
		Err:    ErrNoResponse,
	}
}

// ClassOf returns the class of err if it wraps a FetchError.
func ClassOf(err error) (ErrorClass, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class, true
	}
	return "", false
}
