package poller

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Poller tracks one long-running operation. It is single-consumption: drive
// it from one goroutine, either by iterating or by calling Wait.
type Poller[T any] struct {
	op     Operation[T]
	opts   Options
	logger zerolog.Logger

	state  State
	status Status
	next   fetch.Request
	last   *fetch.Response

	// pendingInitial is set when the initiating response was already
	// terminal and has not been yielded yet.
	pendingInitial bool

	lastPoll time.Time
	interval time.Duration
	polls    int
	broken   bool

	result    T
	resultErr error
	hasResult bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Start creates a Poller from the response to the initiating request. No
// status check is issued until the Poller is consumed. If initial already
// reports a terminal status the Poller starts terminal and never polls.
func Start[T any](initial *fetch.Response, op Operation[T], opts Options) (*Poller[T], error) {
	if initial == nil {
		return nil, fmt.Errorf("initial response is required")
	}
	op, err := op.withDefaults()
	if err != nil {
		return nil, err
	}

	p := newPoller(op, opts)

	status, err := op.Status(initial)
	if err != nil {
		return nil, fmt.Errorf("read initial status: %w", err)
	}
	monitor, monitorErr := op.Monitor(initial)

	// A 201 or 202 naming a status monitor is accepted work. Its body
	// describes the resource, not the operation.
	if status == StatusSucceeded && monitorErr == nil &&
		(initial.StatusCode == http.StatusCreated || initial.StatusCode == http.StatusAccepted) {
		status = StatusInProgress
	}
	p.status = status
	p.last = initial

	if status.IsTerminal() {
		p.state = stateFor(status)
		p.pendingInitial = true
		terminalTotal.WithLabelValues(p.opts.Operation, string(status)).Inc()
		p.logger.Info().
			Str("status", string(status)).
			Msg("Operation completed immediately")
		return p, nil
	}

	if monitorErr != nil {
		return nil, fmt.Errorf("locate status monitor: %w", monitorErr)
	}
	p.next = monitor

	p.logger.Debug().
		Str("monitor", monitor.URL).
		Msg("Operation accepted")

	return p, nil
}

func newPoller[T any](op Operation[T], opts Options) *Poller[T] {
	opts = opts.withDefaults()

	logger := log.With().Str("component", "poller").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Backoff != nil {
		opts.Backoff.Reset()
	}

	return &Poller[T]{
		op:       op,
		opts:     opts,
		logger:   logger.With().Str("operation", opts.Operation).Logger(),
		state:    StateCreated,
		status:   StatusInProgress,
		interval: opts.Frequency,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Next performs one status check and returns its raw response. The response
// carrying the terminal status is the last value; afterwards Next returns
// ok=false with a nil error. A failed check is returned once and later calls
// return ErrExhausted.
func (p *Poller[T]) Next(ctx context.Context) (*fetch.Response, bool, error) {
	switch {
	case p.broken:
		return nil, false, ErrExhausted
	case p.pendingInitial:
		p.pendingInitial = false
		return p.last, true, nil
	case p.state.IsTerminal():
		return nil, false, nil
	}

	resp, err := p.poll(ctx)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

// Responses returns the remaining poll responses as a range-over-func sequence.
func (p *Poller[T]) Responses(ctx context.Context) iter.Seq2[*fetch.Response, error] {
	return func(yield func(*fetch.Response, error) bool) {
		for {
			resp, ok, err := p.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(resp, nil) {
				return
			}
		}
	}
}

// Poll issues exactly one status check. It returns ErrTerminalState once the
// operation has finished.
func (p *Poller[T]) Poll(ctx context.Context) (*fetch.Response, error) {
	switch {
	case p.broken:
		return nil, ErrExhausted
	case p.state.IsTerminal():
		return nil, ErrTerminalState
	}
	return p.poll(ctx)
}

// Wait drives the operation to a terminal status and returns the result
// extracted from the terminal response. A server-reported failure is not an
// error here; inspect Status or Outcome. Calling Wait again returns the same
// result without further requests.
func (p *Poller[T]) Wait(ctx context.Context) (T, error) {
	if p.hasResult {
		return p.result, p.resultErr
	}

	for {
		_, ok, err := p.Next(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		if !ok {
			break
		}
	}

	p.result, p.resultErr = p.op.Result(p.last)
	if p.resultErr != nil {
		p.resultErr = fmt.Errorf("extract result: %w", p.resultErr)
	}
	p.hasResult = true
	return p.result, p.resultErr
}

// Outcome maps a terminal status to an error value: nil for Succeeded,
// ErrOperationFailed or ErrOperationCanceled otherwise. It returns nil while
// the operation is in progress.
func (p *Poller[T]) Outcome() error {
	switch p.status {
	case StatusFailed:
		return fmt.Errorf("%w: %s", ErrOperationFailed, errorMessage(p.last))
	case StatusCanceled:
		return ErrOperationCanceled
	default:
		return nil
	}
}

// Status returns the last observed status.
func (p *Poller[T]) Status() Status {
	return p.status
}

// State returns the current state.
func (p *Poller[T]) State() State {
	return p.state
}

// Done reports whether the operation reached a terminal state.
func (p *Poller[T]) Done() bool {
	return p.state.IsTerminal()
}

// Polls returns the number of status checks issued.
func (p *Poller[T]) Polls() int {
	return p.polls
}

// Last returns the most recent response, the initiating one before any poll.
func (p *Poller[T]) Last() *fetch.Response {
	return p.last
}

func (p *Poller[T]) poll(ctx context.Context) (*fetch.Response, error) {
	if p.polls > 0 {
		if wait := p.interval - p.now().Sub(p.lastPoll); wait > 0 {
			waitSeconds.Observe(wait.Seconds())
			if err := p.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.state = StatePolling
	p.lastPoll = p.now()
	p.polls++

	resp, err := p.op.Fetcher.Fetch(ctx, p.next)
	switch {
	case err != nil:
	case resp == nil:
		err = fetch.NoResponseError(p.next)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		err = fetch.StatusError(resp)
	}
	if err != nil {
		return nil, p.fail(err)
	}

	status, err := p.op.Status(resp)
	if err != nil {
		return nil, p.fail(err)
	}

	p.last = resp
	p.status = status
	pollsTotal.WithLabelValues(p.opts.Operation, string(status)).Inc()

	if status.IsTerminal() {
		p.state = stateFor(status)
		terminalTotal.WithLabelValues(p.opts.Operation, string(status)).Inc()
		p.logger.Info().
			Str("status", string(status)).
			Int("polls", p.polls).
			Msg("Operation reached terminal status")
		return resp, nil
	}

	// A status response may move the monitor.
	if req, err := p.op.Monitor(resp); err == nil {
		p.next = req
	} else if !errors.Is(err, ErrNoMonitor) {
		return nil, p.fail(err)
	}

	p.interval = p.nextInterval(resp)

	p.logger.Debug().
		Int("poll", p.polls).
		Str("status", string(status)).
		Dur("next_in", p.interval).
		Msg("Operation in progress")

	return resp, nil
}

func (p *Poller[T]) fail(err error) error {
	p.broken = true
	pollErrorsTotal.WithLabelValues(p.opts.Operation).Inc()
	p.logger.Warn().
		Err(err).
		Int("poll", p.polls).
		Str("url", p.next.URL).
		Msg("Status check failed")
	return fmt.Errorf("status check %d: %w", p.polls, err)
}

// nextInterval is the largest of the configured frequency, the server's
// retry-after hint and the backoff policy.
func (p *Poller[T]) nextInterval(resp *fetch.Response) time.Duration {
	interval := p.opts.Frequency
	if d, ok := RetryAfter(resp.Header, p.now()); ok && d > interval {
		interval = d
	}
	if p.opts.Backoff != nil {
		if d := p.opts.Backoff.NextBackOff(); d != backoff.Stop && d > interval {
			interval = d
		}
	}
	return interval
}

// errorMessage pulls "error.message" from a failure payload when present.
func errorMessage(resp *fetch.Response) string {
	if resp == nil {
		return "no details"
	}
	if msg, found, err := fetch.LookupString(resp.Body, "error.message"); err == nil && found {
		return msg
	}
	return "no details"
}
