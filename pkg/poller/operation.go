package poller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

// MonitorFunc builds the status-check request from a response. It returns
// ErrNoMonitor when the response does not name a monitor.
type MonitorFunc func(resp *fetch.Response) (fetch.Request, error)

// StatusFunc reads the operation status from a response.
type StatusFunc func(resp *fetch.Response) (Status, error)

// ResultFunc extracts the final typed result from a terminal response.
type ResultFunc[T any] func(resp *fetch.Response) (T, error)

// Operation is the per-operation knowledge a Poller needs.
type Operation[T any] struct {
	// Fetcher issues status-check requests.
	Fetcher fetch.Fetcher

	// Monitor locates the status monitor. Defaults to HeaderMonitor().
	Monitor MonitorFunc

	// Status reads the status. Defaults to JSONStatus().
	Status StatusFunc

	// Result extracts the final result. Defaults to JSONResult[T]("").
	Result ResultFunc[T]
}

func (op Operation[T]) withDefaults() (Operation[T], error) {
	if op.Fetcher == nil {
		return op, fmt.Errorf("fetcher is required")
	}
	if op.Monitor == nil {
		op.Monitor = HeaderMonitor()
	}
	if op.Status == nil {
		op.Status = JSONStatus()
	}
	if op.Result == nil {
		op.Result = JSONResult[T]("")
	}
	return op, nil
}

// Status monitor headers checked by HeaderMonitor by default.
const (
	HeaderOperationLocation   = "Operation-Location"
	HeaderAzureAsyncOperation = "Azure-AsyncOperation"
	HeaderLocation            = "Location"
)

// MonitorOptions configures HeaderMonitorWith.
type MonitorOptions struct {
	// Headers are the response headers checked for the monitor URL, in
	// order. Defaults to Operation-Location, Azure-AsyncOperation, Location.
	Headers []string

	// PreserveQuery lists query parameters copied from the request that
	// produced the response onto the monitor URL, replacing any value the
	// server put there, e.g. api-version.
	PreserveQuery []string

	// RequestHeaders lists request headers copied from the request that
	// produced the response onto every status check.
	RequestHeaders []string
}

// HeaderMonitor returns a MonitorFunc that issues a GET to the first of the
// given response headers that is present. Relative URLs resolve against the
// request that produced the response.
func HeaderMonitor(headers ...string) MonitorFunc {
	return HeaderMonitorWith(MonitorOptions{Headers: headers})
}

// HeaderMonitorWith is HeaderMonitor with query and header propagation. The
// status-check request becomes the source for the next poll, so preserved
// values follow the operation when the monitor moves.
func HeaderMonitorWith(opts MonitorOptions) MonitorFunc {
	headers := opts.Headers
	if len(headers) == 0 {
		headers = []string{HeaderOperationLocation, HeaderAzureAsyncOperation, HeaderLocation}
	}

	return func(resp *fetch.Response) (fetch.Request, error) {
		for _, name := range headers {
			v := resp.Header.Get(name)
			if v == "" {
				continue
			}
			ref, err := url.Parse(v)
			if err != nil {
				return fetch.Request{}, fmt.Errorf("parse %s header: %w", name, err)
			}

			var source *url.URL
			if resp.Request.URL != "" {
				source, err = url.Parse(resp.Request.URL)
				if err != nil {
					return fetch.Request{}, fmt.Errorf("parse request url: %w", err)
				}
			}
			if !ref.IsAbs() && source != nil {
				ref = source.ResolveReference(ref)
			}

			if len(opts.PreserveQuery) > 0 && source != nil {
				src := source.Query()
				q := ref.Query()
				for _, param := range opts.PreserveQuery {
					if v := src.Get(param); v != "" {
						q.Set(param, v)
					}
				}
				ref.RawQuery = q.Encode()
			}

			req := fetch.NewRequest(http.MethodGet, ref.String(), nil)
			for _, h := range opts.RequestHeaders {
				if values := resp.Request.Header.Values(h); len(values) > 0 {
					req.Header[http.CanonicalHeaderKey(h)] = append([]string(nil), values...)
				}
			}
			return req, nil
		}
		return fetch.Request{}, ErrNoMonitor
	}
}

// JSONStatus returns a StatusFunc that reads the first present dotted JSON
// field of paths (default "status" then "properties.provisioningState").
// Without a status field, 202 Accepted means in progress and any other 2xx
// means succeeded.
func JSONStatus(paths ...string) StatusFunc {
	if len(paths) == 0 {
		paths = []string{"status", "properties.provisioningState"}
	}

	return func(resp *fetch.Response) (Status, error) {
		for _, path := range paths {
			label, found, err := fetch.LookupString(resp.Body, path)
			if err != nil {
				return "", fetch.DecodeError(resp, err)
			}
			if found {
				return ParseStatus(label), nil
			}
		}

		switch {
		case resp.StatusCode == http.StatusAccepted:
			return StatusInProgress, nil
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return StatusSucceeded, nil
		default:
			return "", fetch.StatusError(resp)
		}
	}
}

// JSONResult returns a ResultFunc that decodes the dotted JSON field path, or
// the whole body when path is empty. An empty body or missing field yields
// the zero value.
func JSONResult[T any](path string) ResultFunc[T] {
	return func(resp *fetch.Response) (T, error) {
		var out T
		raw, found, err := fetch.LookupRaw(resp.Body, path)
		if err != nil {
			return out, fetch.DecodeError(resp, err)
		}
		if !found {
			return out, nil
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fetch.DecodeError(resp, err)
		}
		return out, nil
	}
}
