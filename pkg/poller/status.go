// Package poller drives a long-running server-side operation from its
// "accepted" response to a terminal status.
//
// A Poller is created from the response to the initiating request. It polls a
// status monitor lazily: nothing is sent until the caller iterates with Next
// or blocks in Wait. Consecutive polls are at least Options.Frequency apart
// (longer when the server asks for it with a retry-after header), and polling
// stops for good once a terminal status is observed.
//
// A server-reported Failed or Canceled status is a successfully observed
// terminal state, not an error. Transport and decoding failures are returned
// from the poll that hit them and leave the Poller unusable; the runtime does
// not retry them.
package poller

import "strings"

// Status is the server-reported status of an operation, collapsed to four
// semantic buckets.
type Status string

const (
	// StatusInProgress means the operation has not finished yet.
	StatusInProgress Status = "InProgress"

	// StatusSucceeded means the operation completed successfully.
	StatusSucceeded Status = "Succeeded"

	// StatusFailed means the server reports the operation failed.
	StatusFailed Status = "Failed"

	// StatusCanceled means the operation was canceled.
	StatusCanceled Status = "Canceled"
)

// IsTerminal reports whether no further polling can change the status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// ParseStatus maps a server status label onto a Status. Labels are matched
// case-insensitively; unknown labels count as in progress.
func ParseStatus(label string) Status {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "succeeded", "completed":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		return StatusInProgress
	}
}

// State is the poller's position in its state machine.
type State int

const (
	// StateCreated means no status check has been issued yet.
	StateCreated State = iota

	// StatePolling means at least one status check reported a non-terminal status.
	StatePolling

	// StateSucceeded is terminal.
	StateSucceeded

	// StateFailed is terminal.
	StateFailed

	// StateCanceled is terminal.
	StateCanceled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StatePolling:
		return "Polling"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	case StateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the state is absorbing.
func (s State) IsTerminal() bool {
	return s >= StateSucceeded
}

func stateFor(status Status) State {
	switch status {
	case StatusSucceeded:
		return StateSucceeded
	case StatusFailed:
		return StateFailed
	case StatusCanceled:
		return StateCanceled
	default:
		return StatePolling
	}
}
