// Package testutil provides an httptest REST service that serves scripted
// paged listings and long-running operations.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a fixed mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockService is a configurable mock REST server for testing.
type MockService struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	ConditionalCount  int
	PollCount         int
	LastRequestHeader http.Header
	paths             []string
}

// NewMockService creates a new mock server.
func NewMockService() *MockService {
	mock := &MockService{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.paths = append(mock.paths, r.URL.RequestURI())
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"code": "NotFound", "message": "no route for " + r.URL.Path},
		})
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockService) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockService) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.PollCount = 0
	m.LastRequestHeader = nil
	m.paths = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockService) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockService) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockService) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockService) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetPollCount returns the number of operation status checks served.
func (m *MockService) GetPollCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PollCount
}

// Requests returns the request URIs seen so far, in order.
func (m *MockService) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListingStyle selects how a scripted listing hands out continuation.
type ListingStyle int

const (
	// ListingNextLink puts an absolute "nextLink" URL in the body. Query
	// parameters of the first request are not repeated on the link.
	ListingNextLink ListingStyle = iota

	// ListingQueryToken puts "continuationToken" in the body; the client
	// sends it back as the "token" query parameter.
	ListingQueryToken

	// ListingHeaderToken sends the token in the "x-ms-continuation" header
	// and expects it back in the same request header.
	ListingHeaderToken

	// ListingBodyToken puts "continuationToken" in the body; the client
	// sends it back in a POST body at "continuation.token".
	ListingBodyToken
)

// Listing headers and parameters used by the scripted listings.
const (
	ContinuationHeader = "x-ms-continuation"
	TokenParam         = "token"
)

// Listing is a scripted paged collection.
type Listing struct {
	Style ListingStyle
	Pages [][]any

	// ETag makes every page carry an ETag and answer matching conditional
	// requests with 304.
	ETag bool

	// FailPage answers the request for page FailPage (1-based) with 500.
	FailPage int
}

// SetListing serves listing at path.
func (m *MockService) SetListing(path string, listing Listing) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		index, err := listingIndex(listing.Style, r)
		if err != nil || index < 0 || index >= len(listing.Pages) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]string{"code": "InvalidContinuation", "message": "bad continuation"},
			})
			return
		}

		if listing.FailPage == index+1 {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": map[string]string{"code": "InternalError", "message": "page failed"},
			})
			return
		}

		etag := fmt.Sprintf(`"page-%d"`, index)
		if listing.ETag {
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", etag)
		}

		body := map[string]any{"value": listing.Pages[index]}
		if index+1 < len(listing.Pages) {
			token := "page-" + strconv.Itoa(index+1)
			switch listing.Style {
			case ListingNextLink:
				body["nextLink"] = m.server.URL + path + "?page=" + strconv.Itoa(index+1)
			case ListingQueryToken, ListingBodyToken:
				body["continuationToken"] = token
			case ListingHeaderToken:
				w.Header().Set(ContinuationHeader, token)
			}
		}
		writeJSON(w, http.StatusOK, body)
	})
}

func listingIndex(style ListingStyle, r *http.Request) (int, error) {
	var token string
	switch style {
	case ListingNextLink:
		if p := r.URL.Query().Get("page"); p != "" {
			return strconv.Atoi(p)
		}
		return 0, nil
	case ListingQueryToken:
		token = r.URL.Query().Get(TokenParam)
	case ListingHeaderToken:
		token = r.Header.Get(ContinuationHeader)
	case ListingBodyToken:
		var req struct {
			Continuation struct {
				Token string `json:"token"`
			} `json:"continuation"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&req)
		}
		token = req.Continuation.Token
	}
	if token == "" {
		return 0, nil
	}
	n, ok := strings.CutPrefix(token, "page-")
	if !ok {
		return 0, fmt.Errorf("unknown token %q", token)
	}
	return strconv.Atoi(n)
}

// Operation is a scripted long-running operation. The initiating request
// answers 201 with an Operation-Location header; each status check returns
// the next entry of Statuses, repeating the last one. An empty Statuses
// completes the operation in the initiating response.
type Operation struct {
	Statuses []string

	// Result is returned under "result" once the status is terminal.
	Result any

	// RetryAfter is sent as retry-after on in-progress status checks.
	RetryAfter string

	// FailPoll answers status check FailPoll (1-based) with 500.
	FailPoll int
}

// StatusPath returns the monitor path of the operation registered at path.
func StatusPath(path string) string {
	return strings.TrimSuffix(path, "/") + "/status"
}

// SetOperation serves op at path and its status monitor at StatusPath(path).
func (m *MockService) SetOperation(path string, op Operation) {
	monitor := StatusPath(path)
	polls := 0

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if len(op.Statuses) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"status": "Succeeded", "result": op.Result})
			return
		}
		w.Header().Set("Operation-Location", m.server.URL+monitor)
		writeJSON(w, http.StatusCreated, map[string]any{"status": "Accepted"})
	})

	m.SetHandler(monitor, func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.PollCount++
		polls++
		n := polls
		m.mu.Unlock()

		if op.FailPoll == n {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": map[string]string{"code": "InternalError", "message": "status check failed"},
			})
			return
		}

		status := op.Statuses[min(n, len(op.Statuses))-1]
		body := map[string]any{"status": status}
		switch strings.ToLower(status) {
		case "succeeded", "failed", "canceled", "cancelled":
			if op.Result != nil {
				body["result"] = op.Result
			}
			if strings.EqualFold(status, "failed") {
				body["error"] = map[string]string{"code": "OperationFailed", "message": "the operation failed"}
			}
		default:
			if op.RetryAfter != "" {
				w.Header().Set("Retry-After", op.RetryAfter)
			}
		}
		writeJSON(w, http.StatusOK, body)
	})
}
