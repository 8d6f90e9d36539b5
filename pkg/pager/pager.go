package pager

import (
	"context"
	"iter"

	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	resume    fetch.Marker
	operation string
	logger    zerolog.Logger
}

// Option configures a Pager or PageIterator.
type Option func(*options)

// WithContinuation starts iteration from a caller-supplied marker instead of
// the first page. The first request is rebuilt through the strategy.
func WithContinuation(m fetch.Marker) Option {
	return func(o *options) {
		o.resume = m
	}
}

// WithOperation names the listing in logs and metrics. It defaults to the
// strategy name.
func WithOperation(name string) Option {
	return func(o *options) {
		o.operation = name
	}
}

// WithLogger sets the logger used for page fetch events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: log.With().Str("component", "pager").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Pager is a lazy, single-pass sequence over the items of all pages.
// Nothing is fetched until the first pull.
type Pager[T any] struct {
	cur *cursor[T]
}

// New starts a listing. initial is the first request, fetchPage fetches and
// decodes one page, and strategy locates the continuation marker.
func New[T any](initial fetch.Request, fetchPage PageFunc[T], strategy Strategy, opts ...Option) *Pager[T] {
	return &Pager[T]{cur: newCursor(initial, fetchPage, strategy, buildOptions(opts))}
}

// Next returns the next item. It returns ok=false with a nil error once every
// page has been consumed. A fetch error is returned once; later pulls return
// ErrExhausted.
func (p *Pager[T]) Next(ctx context.Context) (item T, ok bool, err error) {
	if p.cur == nil {
		return item, false, ErrClosed
	}
	return p.cur.nextItem(ctx)
}

// Items returns the remaining items as a range-over-func sequence. The
// sequence stops after yielding an error.
func (p *Pager[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, ok, err := p.Next(ctx)
			if err != nil {
				yield(item, err)
				return
			}
			if !ok || !yield(item, nil) {
				return
			}
		}
	}
}

// IntoPages converts the Pager into a PageIterator over the same cursor. If
// the current page still has unread items it is the first page yielded, in
// full. The Pager must not be used afterwards; its pulls return ErrClosed.
func (p *Pager[T]) IntoPages() *PageIterator[T] {
	cur := p.cur
	p.cur = nil
	return &PageIterator[T]{cur: cur}
}

// ContinuationToken returns the marker that fetches the next page not yet
// fetched. Unread items of the current page are not covered by it.
func (p *Pager[T]) ContinuationToken() fetch.Marker {
	if p.cur == nil {
		return fetch.Absent
	}
	return p.cur.continuation()
}

// Fetches returns the number of page fetches issued so far.
func (p *Pager[T]) Fetches() int {
	if p.cur == nil {
		return 0
	}
	return p.cur.fetches
}

// Close drops the Pager. No further fetches are issued.
func (p *Pager[T]) Close() {
	if p.cur != nil {
		p.cur.close()
	}
}

// Collect drains the remaining items of p.
func Collect[T any](ctx context.Context, p *Pager[T]) ([]T, error) {
	var items []T
	for item, err := range p.Items(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}
