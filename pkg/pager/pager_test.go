package pager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listURL = "https://svc.example.com/items"

// scriptedPage is one canned page keyed by the token that requests it.
type scriptedPage struct {
	items []int
	next  string
	err   error
}

// scriptedService answers page fetches from a fixed script and counts calls.
type scriptedService struct {
	pages    map[string]scriptedPage
	calls    int
	requests []fetch.Request
}

func (s *scriptedService) fetchPage(_ context.Context, req fetch.Request) (*Page[int], error) {
	s.calls++
	s.requests = append(s.requests, req)

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	sp, ok := s.pages[u.Query().Get("token")]
	if !ok {
		return nil, fmt.Errorf("no page scripted for %s", req.URL)
	}
	if sp.err != nil {
		return nil, sp.err
	}

	body := `{}`
	if sp.next != "" {
		body = fmt.Sprintf(`{"next":%q}`, sp.next)
	}
	return &Page[int]{
		Items: sp.items,
		Response: &fetch.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       []byte(body),
			Request:    req,
		},
	}, nil
}

func twoPageService() *scriptedService {
	return &scriptedService{pages: map[string]scriptedPage{
		"":      {items: []int{1, 2}, next: "page2"},
		"page2": {items: []int{3, 4}},
	}}
}

func newTestPager(svc *scriptedService, opts ...Option) *Pager[int] {
	return New(fetch.NewRequest(http.MethodGet, listURL, nil), svc.fetchPage, QueryToken("next", "token"), opts...)
}

func TestPager_FullIteration(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)

	items, err := Collect(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, items)
	assert.Equal(t, 2, svc.calls)
	assert.Equal(t, 2, p.Fetches())
	assert.True(t, p.ContinuationToken().IsAbsent())

	// Pulling past the end keeps reporting "no more items".
	for range 3 {
		_, ok, err := p.Next(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, svc.calls)
}

func TestPager_ResumeFromToken(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc, WithContinuation(fetch.Token("page2")))

	items, err := Collect(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, items)
	assert.Equal(t, 1, svc.calls)
	assert.Equal(t, listURL+"?token=page2", svc.requests[0].URL)
}

func TestPager_LazyStart(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)
	assert.Equal(t, 0, svc.calls)

	item, ok, err := p.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, item)
	assert.Equal(t, 1, svc.calls)

	// Second item comes from the buffered page.
	_, _, err = p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, svc.calls)
}

func TestPager_ManyPages(t *testing.T) {
	const numPages = 7
	svc := &scriptedService{pages: map[string]scriptedPage{}}
	var want []int
	for i := 0; i < numPages; i++ {
		key := ""
		if i > 0 {
			key = fmt.Sprintf("p%d", i)
		}
		next := ""
		if i < numPages-1 {
			next = fmt.Sprintf("p%d", i+1)
		}
		items := make([]int, i%3+1)
		for j := range items {
			items[j] = i*10 + j
		}
		want = append(want, items...)
		svc.pages[key] = scriptedPage{items: items, next: next}
	}

	items, err := Collect(context.Background(), newTestPager(svc))
	require.NoError(t, err)
	assert.Equal(t, want, items)
	assert.Equal(t, numPages, svc.calls)
}

func TestPager_SkipsEmptyPages(t *testing.T) {
	svc := &scriptedService{pages: map[string]scriptedPage{
		"":  {items: []int{1}, next: "b"},
		"b": {items: nil, next: "c"},
		"c": {items: []int{}, next: "d"},
		"d": {items: []int{2}},
	}}

	items, err := Collect(context.Background(), newTestPager(svc))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)
	assert.Equal(t, 4, svc.calls)
}

func TestPager_IntoPagesPartiallyConsumed(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)
	ctx := context.Background()

	item, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, item)

	pages := p.IntoPages()

	first, ok, err := pages.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, first.Items, "buffered page must be yielded whole")
	assert.Equal(t, 1, svc.calls, "buffered page must not be re-fetched")

	second, ok, err := pages.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{3, 4}, second.Items)
	assert.True(t, second.Marker.IsAbsent())

	_, ok, err = pages.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, svc.calls)

	// The converted Pager is consumed.
	_, _, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPager_IntoPagesSamePageObject(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)
	ctx := context.Background()

	_, _, err := p.Next(ctx)
	require.NoError(t, err)
	buffered := p.cur.page

	pages := p.IntoPages()
	first, _, err := pages.Next(ctx)
	require.NoError(t, err)
	assert.Same(t, buffered, first)
}

func TestPager_IntoPagesAfterFullPage(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)
	ctx := context.Background()

	for range 2 {
		_, _, err := p.Next(ctx)
		require.NoError(t, err)
	}

	pages := p.IntoPages()
	page, ok, err := pages.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{3, 4}, page.Items)
	assert.Equal(t, 2, svc.calls)
}

func TestPager_IntoPagesBeforeFirstPull(t *testing.T) {
	svc := twoPageService()
	pages := newTestPager(svc).IntoPages()

	var got [][]int
	for page, err := range pages.Pages(context.Background()) {
		require.NoError(t, err)
		got = append(got, page.Items)
	}
	assert.Equal(t, [][]int{{1, 2}, {3, 4}}, got)
	assert.Equal(t, 2, svc.calls)
}

func TestPager_CloseStopsFetching(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)
	ctx := context.Background()

	_, _, err := p.Next(ctx)
	require.NoError(t, err)
	calls := svc.calls

	p.Close()

	_, ok, err := p.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, ok)
	assert.Equal(t, calls, svc.calls)
}

func TestPager_BreakStopsFetching(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)

	for item, err := range p.Items(context.Background()) {
		require.NoError(t, err)
		if item == 1 {
			break
		}
	}
	assert.Equal(t, 1, svc.calls)
}

func TestPager_FetchErrorIsTerminal(t *testing.T) {
	boom := errors.New("connection reset")
	svc := &scriptedService{pages: map[string]scriptedPage{
		"":      {items: []int{1, 2}, next: "page2"},
		"page2": {err: boom},
	}}
	p := newTestPager(svc)

	items, err := Collect(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, items, "items yielded before the failure stay valid")

	_, ok, err := p.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 2, svc.calls, "no fetch after a failure")
}

func TestPager_RepeatedMarker(t *testing.T) {
	svc := &scriptedService{pages: map[string]scriptedPage{
		"":  {items: []int{1}, next: "a"},
		"a": {items: []int{2}, next: "a"},
	}}

	items, err := Collect(context.Background(), newTestPager(svc))
	assert.ErrorIs(t, err, ErrRepeatedMarker)
	assert.Equal(t, []int{1, 2}, items)
	assert.Equal(t, 2, svc.calls)
}

func TestPager_ContinuationToken(t *testing.T) {
	svc := twoPageService()
	pages := NewPages(fetch.NewRequest(http.MethodGet, listURL, nil), svc.fetchPage, QueryToken("next", "token"))
	ctx := context.Background()

	assert.True(t, pages.ContinuationToken().IsAbsent())

	_, _, err := pages.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, fetch.Token("page2"), pages.ContinuationToken())

	_, _, err = pages.Next(ctx)
	require.NoError(t, err)
	assert.True(t, pages.ContinuationToken().IsAbsent())
}

func TestPager_CanceledContext(t *testing.T) {
	svc := twoPageService()
	p := newTestPager(svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, svc.calls)

	items, err := Collect(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, items)
}

func TestPager_MultipleInstancesIndependent(t *testing.T) {
	svcA := twoPageService()
	svcB := twoPageService()
	a := newTestPager(svcA)
	b := newTestPager(svcB)
	ctx := context.Background()

	itemA, _, err := a.Next(ctx)
	require.NoError(t, err)
	itemsB, err := Collect(ctx, b)
	require.NoError(t, err)
	restA, err := Collect(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, 1, itemA)
	assert.Equal(t, []int{2, 3, 4}, restA)
	assert.Equal(t, []int{1, 2, 3, 4}, itemsB)
}

func TestJSONPages_NilResponse(t *testing.T) {
	nothing := fetch.FetcherFunc(func(context.Context, fetch.Request) (*fetch.Response, error) {
		return nil, nil
	})
	p := New(fetch.NewRequest(http.MethodGet, listURL, nil), JSONPages[int](nothing, ""), Single())

	_, ok, err := p.Next(context.Background())
	assert.False(t, ok)
	require.ErrorIs(t, err, fetch.ErrNoResponse)

	_, _, err = p.Next(context.Background())
	assert.ErrorIs(t, err, fetch.ErrExhausted)
}
