package poller

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	createURL  = "https://svc.example.com/widgets"
	monitorURL = "https://svc.example.com/operations/op-1"
)

type widget struct {
	Name string `json:"name"`
}

// statusScript answers status checks from a fixed list of responses.
type statusScript struct {
	responses []*fetch.Response
	errs      []error
	requests  []fetch.Request
}

func (s *statusScript) Fetch(_ context.Context, req fetch.Request) (*fetch.Response, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		return nil, errors.New("no response scripted")
	}
	resp := *s.responses[i]
	resp.Request = req
	return &resp, nil
}

func jsonResponse(code int, body string, headers ...string) *fetch.Response {
	h := http.Header{}
	for i := 0; i+1 < len(headers); i += 2 {
		h.Set(headers[i], headers[i+1])
	}
	return &fetch.Response{StatusCode: code, Header: h, Body: []byte(body)}
}

func acceptedResponse() *fetch.Response {
	resp := jsonResponse(http.StatusAccepted, `{"status":"Running"}`, HeaderOperationLocation, monitorURL)
	resp.Request = fetch.NewRequest(http.MethodPut, createURL, []byte(`{}`))
	return resp
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func startTest(t *testing.T, svc *statusScript, opts Options) (*Poller[widget], *fakeClock) {
	t.Helper()
	p, err := Start(acceptedResponse(), Operation[widget]{
		Fetcher: svc,
		Result:  JSONResult[widget]("result"),
	}, opts)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p.now = clock.Now
	p.sleep = clock.Sleep
	return p, clock
}

func TestPoller_InProgressThenSucceeded(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"InProgress"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded","result":{"name":"w1"}}`),
	}}
	p, _ := startTest(t, svc, Options{Frequency: time.Second})
	ctx := context.Background()

	var statuses []Status
	for resp, err := range p.Responses(ctx) {
		require.NoError(t, err)
		require.NotNil(t, resp)
		statuses = append(statuses, p.Status())
	}

	assert.Equal(t, []Status{StatusInProgress, StatusSucceeded}, statuses)
	assert.Equal(t, StateSucceeded, p.State())
	assert.True(t, p.Done())
	assert.Equal(t, 2, p.Polls())
	require.Len(t, svc.requests, 2)
	assert.Equal(t, monitorURL, svc.requests[0].URL)
	assert.Equal(t, http.MethodGet, svc.requests[0].Method)

	_, ok, err := p.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	result, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "w1", result.Name)
	assert.Len(t, svc.requests, 2, "Wait on a terminal poller must not poll")
	assert.NoError(t, p.Outcome())
}

func TestPoller_WaitDrivesToCompletion(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded","result":{"name":"done"}}`),
	}}
	p, clock := startTest(t, svc, Options{Frequency: 2 * time.Second})

	result, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", result.Name)
	assert.Equal(t, 3, p.Polls())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.sleeps)

	again, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result, again)
	assert.Len(t, svc.requests, 3)
}

func TestPoller_WaitAfterPartialIteration(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded","result":{"name":"w"}}`),
	}}
	p, _ := startTest(t, svc, Options{Frequency: time.Second})
	ctx := context.Background()

	_, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatePolling, p.State())

	result, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "w", result.Name)
	assert.Len(t, svc.requests, 2)
}

func TestPoller_ImmediateCompletion(t *testing.T) {
	svc := &statusScript{}
	initial := jsonResponse(http.StatusCreated, `{"result":{"name":"instant"},"status":"Succeeded"}`)
	initial.Request = fetch.NewRequest(http.MethodPut, createURL, nil)

	p, err := Start(initial, Operation[widget]{Fetcher: svc, Result: JSONResult[widget]("result")}, Options{})
	require.NoError(t, err)
	assert.True(t, p.Done())

	var got []*fetch.Response
	for resp, err := range p.Responses(context.Background()) {
		require.NoError(t, err)
		got = append(got, resp)
	}
	require.Len(t, got, 1)
	assert.Same(t, initial, got[0])

	result, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "instant", result.Name)
	assert.Empty(t, svc.requests)
	assert.Zero(t, p.Polls())
}

func TestPoller_CreatedWithMonitorIsPolled(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded","result":{"name":"madge"}}`),
	}}
	initial := jsonResponse(http.StatusCreated, `{"name":"madge","role":"contributor"}`, HeaderOperationLocation, monitorURL)
	initial.Request = fetch.NewRequest(http.MethodPut, createURL, []byte(`{}`))

	p, err := Start(initial, Operation[widget]{Fetcher: svc, Result: JSONResult[widget]("result")}, Options{Frequency: time.Millisecond})
	require.NoError(t, err)
	assert.False(t, p.Done())
	assert.Equal(t, StatusInProgress, p.Status())

	result, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "madge", result.Name)
	assert.Equal(t, 2, p.Polls())
	require.Len(t, svc.requests, 2)
	assert.Equal(t, monitorURL, svc.requests[0].URL)
}

func TestPoller_CreatedWithFailedBodyIsTerminal(t *testing.T) {
	initial := jsonResponse(http.StatusCreated, `{"status":"Failed"}`, HeaderOperationLocation, monitorURL)
	initial.Request = fetch.NewRequest(http.MethodPut, createURL, nil)

	p, err := Start(initial, Operation[widget]{Fetcher: &statusScript{}}, Options{})
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, StateFailed, p.State())
}

func TestPoller_ImmediateCompletionWithoutStatusField(t *testing.T) {
	initial := jsonResponse(http.StatusOK, `{"name":"plain"}`)
	initial.Request = fetch.NewRequest(http.MethodPut, createURL, nil)

	p, err := Start(initial, Operation[widget]{Fetcher: &statusScript{}}, Options{})
	require.NoError(t, err)

	result, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "plain", result.Name)
	assert.Equal(t, StatusSucceeded, p.Status())
}

func TestPoller_FailedIsNotAnError(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Failed","error":{"message":"quota exceeded"}}`),
	}}
	p, _ := startTest(t, svc, Options{})

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status())
	assert.Equal(t, StateFailed, p.State())

	outcome := p.Outcome()
	require.ErrorIs(t, outcome, ErrOperationFailed)
	assert.Contains(t, outcome.Error(), "quota exceeded")
}

func TestPoller_Canceled(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Cancelled"}`),
	}}
	p, _ := startTest(t, svc, Options{})

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, p.State())
	assert.ErrorIs(t, p.Outcome(), ErrOperationCanceled)
}

func TestPoller_MinimumFrequency(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
	}}
	p, clock := startTest(t, svc, Options{Frequency: 5 * time.Second})

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, clock.sleeps, 2)
	for _, d := range clock.sleeps {
		assert.GreaterOrEqual(t, d, 5*time.Second)
	}
}

func TestPoller_IntervalCountsFromPreviousPoll(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
	}}
	p, clock := startTest(t, svc, Options{Frequency: 5 * time.Second})
	ctx := context.Background()

	_, _, err := p.Next(ctx)
	require.NoError(t, err)

	// The caller spent 3s before asking again.
	clock.now = clock.now.Add(3 * time.Second)
	_, _, err = p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.sleeps)
}

func TestPoller_SlowCallerNeverWaits(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
	}}
	p, clock := startTest(t, svc, Options{Frequency: 5 * time.Second})
	ctx := context.Background()

	_, _, err := p.Next(ctx)
	require.NoError(t, err)

	clock.now = clock.now.Add(10 * time.Second)
	_, _, err = p.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, clock.sleeps)
}

func TestPoller_RetryAfterExtendsInterval(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   time.Duration
	}{
		{"retry-after seconds", HeaderRetryAfter, "7", 7 * time.Second},
		{"retry-after-ms", HeaderRetryAfterMS, "4500", 4500 * time.Millisecond},
		{"x-ms-retry-after-ms", HeaderXMSRetryAfterMS, "3000", 3 * time.Second},
		{"shorter than frequency", HeaderRetryAfter, "1", 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &statusScript{responses: []*fetch.Response{
				jsonResponse(http.StatusOK, `{"status":"Running"}`, tt.header, tt.value),
				jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
			}}
			p, clock := startTest(t, svc, Options{Frequency: 2 * time.Second})

			_, err := p.Wait(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.want}, clock.sleeps)
		})
	}
}

func TestPoller_Backoff(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
	}}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	p, clock := startTest(t, svc, Options{Frequency: time.Second, Backoff: b})

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, clock.sleeps)
}

func TestPoller_TransportErrorBreaksPoller(t *testing.T) {
	boom := &fetch.FetchError{Class: fetch.ErrorClassNetwork, Err: errors.New("connection reset")}
	svc := &statusScript{errs: []error{boom}}
	p, _ := startTest(t, svc, Options{})
	ctx := context.Background()

	_, ok, err := p.Next(ctx)
	require.ErrorIs(t, err, boom)
	assert.False(t, ok)

	_, _, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Len(t, svc.requests, 1)
}

func TestPoller_ErrorStatusBreaksPoller(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusInternalServerError, `{"error":{"message":"oops"}}`),
	}}
	p, _ := startTest(t, svc, Options{})

	_, err := p.Wait(context.Background())
	class, ok := fetch.ClassOf(err)
	require.True(t, ok)
	assert.Equal(t, fetch.ErrorClassServer, class)

	_, err = p.Poll(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestPoller_PollOnTerminal(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
	}}
	p, _ := startTest(t, svc, Options{})

	resp, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = p.Poll(context.Background())
	assert.ErrorIs(t, err, ErrTerminalState)
	assert.Len(t, svc.requests, 1)
}

func TestPoller_CanceledContextDuringWait(t *testing.T) {
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
	}}
	p, _ := startTest(t, svc, Options{Frequency: time.Second})

	_, _, err := p.Next(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, svc.requests, 1)

	// Cancellation does not break the poller.
	_, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, p.Status())
}

func TestPoller_MonitorMoves(t *testing.T) {
	moved := "https://svc.example.com/operations/op-1/v2"
	svc := &statusScript{responses: []*fetch.Response{
		jsonResponse(http.StatusAccepted, `{"status":"Running"}`, HeaderLocation, moved),
		jsonResponse(http.StatusOK, `{"status":"Running"}`),
		jsonResponse(http.StatusOK, `{"status":"Succeeded"}`),
	}}
	p, _ := startTest(t, svc, Options{})

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, svc.requests, 3)
	assert.Equal(t, monitorURL, svc.requests[0].URL)
	assert.Equal(t, moved, svc.requests[1].URL)
	assert.Equal(t, moved, svc.requests[2].URL, "a response without a monitor keeps the previous one")
}

func TestStart_Validation(t *testing.T) {
	_, err := Start[widget](nil, Operation[widget]{Fetcher: &statusScript{}}, Options{})
	assert.Error(t, err)

	_, err = Start(acceptedResponse(), Operation[widget]{}, Options{})
	assert.Error(t, err)

	noMonitor := jsonResponse(http.StatusAccepted, `{"status":"Running"}`)
	_, err = Start(noMonitor, Operation[widget]{Fetcher: &statusScript{}}, Options{})
	assert.ErrorIs(t, err, ErrNoMonitor)
}

func TestPoller_IndependentInstances(t *testing.T) {
	svcA := &statusScript{responses: []*fetch.Response{jsonResponse(http.StatusOK, `{"status":"Succeeded","result":{"name":"a"}}`)}}
	svcB := &statusScript{responses: []*fetch.Response{jsonResponse(http.StatusOK, `{"status":"Failed"}`)}}
	a, _ := startTest(t, svcA, Options{})
	b, _ := startTest(t, svcB, Options{})

	ra, err := a.Wait(context.Background())
	require.NoError(t, err)
	_, err = b.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a", ra.Name)
	assert.Equal(t, StateSucceeded, a.State())
	assert.Equal(t, StateFailed, b.State())
}

func TestPoller_NilResponseBreaksPoller(t *testing.T) {
	nothing := fetch.FetcherFunc(func(context.Context, fetch.Request) (*fetch.Response, error) {
		return nil, nil
	})
	p, err := Start(acceptedResponse(), Operation[widget]{Fetcher: nothing}, Options{})
	require.NoError(t, err)

	_, err = p.Poll(context.Background())
	require.ErrorIs(t, err, fetch.ErrNoResponse)
	class, ok := fetch.ClassOf(err)
	require.True(t, ok)
	assert.Equal(t, fetch.ErrorClassDecode, class)

	_, err = p.Poll(context.Background())
	assert.ErrorIs(t, err, fetch.ErrExhausted)
}
