package poller

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Headers a server may use to ask for a longer poll interval, in order of
// precedence. The first two carry milliseconds, retry-after seconds or an
// HTTP date.
const (
	HeaderRetryAfterMS    = "retry-after-ms"
	HeaderXMSRetryAfterMS = "x-ms-retry-after-ms"
	HeaderRetryAfter      = "retry-after"
)

// MaxRetryAfter caps the delay a server can request.
const MaxRetryAfter = 24 * time.Hour

// RetryAfter returns the delay requested by the response headers, capped at
// MaxRetryAfter.
func RetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	for _, name := range []string{HeaderRetryAfterMS, HeaderXMSRetryAfterMS} {
		if v := h.Get(name); v != "" {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
				return scaled(ms, time.Millisecond), true
			}
		}
	}

	v := h.Get(HeaderRetryAfter)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
		return scaled(secs, time.Second), true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, MaxRetryAfter), true
		}
		return 0, true
	}
	return 0, false
}

func scaled(n int64, unit time.Duration) time.Duration {
	if n > int64(MaxRetryAfter/unit) {
		return MaxRetryAfter
	}
	return time.Duration(n) * unit
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
