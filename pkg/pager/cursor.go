package pager

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/rs/zerolog"
)

// cursor is the single state object behind both the item and page views.
type cursor[T any] struct {
	initial   fetch.Request
	fetchPage PageFunc[T]
	strategy  Strategy
	operation string
	logger    zerolog.Logger

	resume  fetch.Marker
	started bool

	page   *Page[T]
	index  int
	marker fetch.Marker
	seen   map[string]struct{}

	fetches int
	done    bool
	failed  bool
	closed  bool
}

func newCursor[T any](initial fetch.Request, fetchPage PageFunc[T], strategy Strategy, o options) *cursor[T] {
	operation := o.operation
	if operation == "" {
		operation = strategy.Name
	}

	return &cursor[T]{
		initial:   initial.Clone(),
		fetchPage: fetchPage,
		strategy:  strategy,
		operation: operation,
		logger:    o.logger.With().Str("operation", operation).Logger(),
		resume:    o.resume,
		seen:      make(map[string]struct{}),
	}
}

// check reports whether the cursor may still be pulled from.
func (c *cursor[T]) check() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.failed:
		return ErrExhausted
	default:
		return nil
	}
}

// hasMore reports whether another fetch is due.
func (c *cursor[T]) hasMore() bool {
	if !c.started {
		return true
	}
	return !c.marker.IsAbsent()
}

// buffered reports whether the current page still has unread items.
func (c *cursor[T]) buffered() bool {
	return c.page != nil && c.index < len(c.page.Items)
}

func (c *cursor[T]) nextItem(ctx context.Context) (T, bool, error) {
	var zero T
	if err := c.check(); err != nil {
		return zero, false, err
	}

	for {
		if c.buffered() {
			item := c.page.Items[c.index]
			c.index++
			itemsTotal.WithLabelValues(c.operation).Inc()
			return item, true, nil
		}

		if !c.hasMore() {
			c.finish()
			return zero, false, nil
		}

		if err := c.advance(ctx); err != nil {
			return zero, false, err
		}
	}
}

func (c *cursor[T]) nextPage(ctx context.Context) (*Page[T], bool, error) {
	if err := c.check(); err != nil {
		return nil, false, err
	}

	// A page buffered by the item view is handed over whole.
	if c.buffered() {
		page := c.page
		c.index = len(page.Items)
		return page, true, nil
	}

	if !c.hasMore() {
		c.finish()
		return nil, false, nil
	}

	if err := c.advance(ctx); err != nil {
		return nil, false, err
	}
	page := c.page
	c.index = len(page.Items)
	return page, true, nil
}

// advance fetches the next page and replaces the buffered one.
func (c *cursor[T]) advance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req, err := c.nextRequest()
	if err != nil {
		c.failed = true
		return err
	}

	start := time.Now()
	page, err := c.fetchPage(ctx, req)
	c.fetches++
	fetchDuration.WithLabelValues(c.operation).Observe(time.Since(start).Seconds())

	if err != nil {
		c.failed = true
		c.page = nil
		fetchErrorsTotal.WithLabelValues(c.operation).Inc()
		c.logger.Warn().
			Err(err).
			Int("page", c.fetches).
			Str("url", req.URL).
			Msg("Page fetch failed")
		return fmt.Errorf("fetch page %d: %w", c.fetches, err)
	}
	if page == nil {
		page = &Page[T]{}
	}

	marker, err := c.strategy.Extract(page.Response)
	if err != nil {
		c.failed = true
		c.page = nil
		fetchErrorsTotal.WithLabelValues(c.operation).Inc()
		return fmt.Errorf("extract continuation from page %d: %w", c.fetches, err)
	}
	page.Marker = marker

	c.started = true
	c.page = page
	c.index = 0
	c.marker = marker
	pagesTotal.WithLabelValues(c.operation).Inc()

	c.logger.Debug().
		Int("page", c.fetches).
		Int("items", len(page.Items)).
		Str("url", req.URL).
		Bool("more", !marker.IsAbsent()).
		Dur("duration", time.Since(start)).
		Msg("Fetched page")

	return nil
}

// nextRequest builds the request-state for the next fetch and consumes the
// marker it is built from.
func (c *cursor[T]) nextRequest() (fetch.Request, error) {
	m := c.marker
	if !c.started {
		if c.resume.IsAbsent() {
			return c.initial.Clone(), nil
		}
		m = c.resume
	}

	key := m.String()
	if _, ok := c.seen[key]; ok {
		return fetch.Request{}, fmt.Errorf("%w: %s", ErrRepeatedMarker, key)
	}
	c.seen[key] = struct{}{}

	req, err := c.strategy.Inject(c.initial, m)
	if err != nil {
		return fetch.Request{}, fmt.Errorf("build request from %s marker: %w", m.Kind, err)
	}
	return req, nil
}

// continuation returns the marker that fetches the next not-yet-fetched page.
func (c *cursor[T]) continuation() fetch.Marker {
	if !c.started {
		return c.resume
	}
	return c.marker
}

func (c *cursor[T]) finish() {
	if c.done {
		return
	}
	c.done = true
	c.page = nil
	c.logger.Debug().Int("pages", c.fetches).Msg("Listing complete")
}

func (c *cursor[T]) close() {
	c.closed = true
	c.page = nil
}
