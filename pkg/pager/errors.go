package pager

import (
	"errors"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

var (
	// ErrExhausted is returned by a pull after the sequence ended with an error.
	ErrExhausted = fetch.ErrExhausted

	// ErrClosed is returned by a pull after Close or IntoPages.
	ErrClosed = fetch.ErrClosed

	// ErrRepeatedMarker is returned when a server hands out a continuation
	// marker that was already used to fetch a page.
	ErrRepeatedMarker = errors.New("continuation marker already used")
)
