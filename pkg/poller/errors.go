package poller

import (
	"errors"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

var (
	// ErrExhausted is returned after a poll failed; the poller cannot continue.
	ErrExhausted = fetch.ErrExhausted

	// ErrTerminalState is returned when polling is requested on an operation
	// that already reached a terminal status.
	ErrTerminalState = errors.New("operation already in a terminal state")

	// ErrNoMonitor is returned by a MonitorFunc when a response carries no
	// status monitor. On a poll response the previous monitor is kept.
	ErrNoMonitor = errors.New("no status monitor in response")

	// ErrOperationFailed is returned by Outcome when the server reported Failed.
	ErrOperationFailed = errors.New("operation failed")

	// ErrOperationCanceled is returned by Outcome when the server reported Canceled.
	ErrOperationCanceled = errors.New("operation canceled")

	// ErrInvalidResumeToken is returned by Resume for a malformed token.
	ErrInvalidResumeToken = errors.New("invalid resume token")
)
