package pager

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

// Page is one server response interpreted as a bounded batch of items.
// It must not be modified after it is returned from a PageFunc.
type Page[T any] struct {
	Items []T

	// Response is the raw response the page was decoded from. Strategies
	// read the continuation marker from it.
	Response *fetch.Response

	// Marker is set by the engine from the strategy once the page is fetched.
	Marker fetch.Marker
}

// PageFunc fetches and decodes one page for the given request-state.
type PageFunc[T any] func(ctx context.Context, req fetch.Request) (*Page[T], error)

// JSONPages returns a PageFunc that issues req through f and decodes the JSON
// array found at itemsPath (dotted, "value" when empty). A missing or null
// array decodes as an empty page.
func JSONPages[T any](f fetch.Fetcher, itemsPath string) PageFunc[T] {
	if itemsPath == "" {
		itemsPath = "value"
	}

	return func(ctx context.Context, req fetch.Request) (*Page[T], error) {
		resp, err := f.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, fetch.NoResponseError(req)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fetch.StatusError(resp)
		}

		raw, found, err := fetch.LookupRaw(resp.Body, itemsPath)
		if err != nil {
			return nil, fetch.DecodeError(resp, err)
		}

		page := &Page[T]{Response: resp}
		if !found {
			return page, nil
		}
		if err := json.Unmarshal(raw, &page.Items); err != nil {
			return nil, fetch.DecodeError(resp, fmt.Errorf("decode %q: %w", itemsPath, err))
		}
		return page, nil
	}
}
