package poller

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultFrequency is the poll interval used when Options.Frequency is unset.
const DefaultFrequency = 30 * time.Second

// Options configures a Poller. It is copied at construction and never
// modified afterwards.
type Options struct {
	// Frequency is the minimum delay between the start of consecutive status
	// checks. There is no wait before the first check.
	Frequency time.Duration

	// Backoff optionally grows the interval between checks. The effective
	// interval is the largest of Frequency, the server's retry-after hint and
	// Backoff.NextBackOff(). A BackOff is stateful and must not be shared
	// between pollers.
	Backoff backoff.BackOff

	// Operation names the operation in logs and metrics.
	Operation string

	// Logger receives poll events. Defaults to a "poller" component logger.
	Logger *zerolog.Logger
}

// DefaultOptions returns the default poller configuration.
func DefaultOptions() Options {
	return Options{
		Frequency: DefaultFrequency,
		Operation: "operation",
	}
}

func (o Options) withDefaults() Options {
	if o.Frequency <= 0 {
		o.Frequency = DefaultFrequency
	}
	if o.Operation == "" {
		o.Operation = "operation"
	}
	return o
}
