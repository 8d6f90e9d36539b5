package pager

import (
	"context"
	"iter"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

// PageIterator is a lazy, single-pass sequence over whole pages.
type PageIterator[T any] struct {
	cur *cursor[T]
}

// NewPages starts a listing at the page level.
func NewPages[T any](initial fetch.Request, fetchPage PageFunc[T], strategy Strategy, opts ...Option) *PageIterator[T] {
	return &PageIterator[T]{cur: newCursor(initial, fetchPage, strategy, buildOptions(opts))}
}

// Next returns the next page. It returns ok=false with a nil error once the
// last page has been returned.
func (it *PageIterator[T]) Next(ctx context.Context) (*Page[T], bool, error) {
	if it.cur == nil {
		return nil, false, ErrClosed
	}
	return it.cur.nextPage(ctx)
}

// Pages returns the remaining pages as a range-over-func sequence.
func (it *PageIterator[T]) Pages(ctx context.Context) iter.Seq2[*Page[T], error] {
	return func(yield func(*Page[T], error) bool) {
		for {
			page, ok, err := it.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(page, nil) {
				return
			}
		}
	}
}

// ContinuationToken returns the marker that fetches the next page. Persisting
// it after each page lets a later listing resume with WithContinuation.
func (it *PageIterator[T]) ContinuationToken() fetch.Marker {
	if it.cur == nil {
		return fetch.Absent
	}
	return it.cur.continuation()
}

// Fetches returns the number of page fetches issued so far.
func (it *PageIterator[T]) Fetches() int {
	if it.cur == nil {
		return 0
	}
	return it.cur.fetches
}

// Close drops the iterator. No further fetches are issued.
func (it *PageIterator[T]) Close() {
	if it.cur != nil {
		it.cur.close()
	}
}
