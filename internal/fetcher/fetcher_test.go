package fetcher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedTransport struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	lastRq Request
}

type step struct {
	status int
	err    error
}

func (s *scriptedTransport) RoundTrip(_ context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRq = req
	st := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	if st.err != nil {
		return Response{}, st.err
	}
	return Response{URL: req.URL, StatusCode: st.status, Body: []byte("ok")}, nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, attempts int, transport Transport, sleeper Sleeper) *Client {
	t.Helper()
	c, err := New(Config{
		MaxAttempts:     attempts,
		BackoffBase:     2 * time.Second,
		MinRequestDelay: time.Second,
	}, transport, sleeper, nil)
	require.NoError(t, err)
	return c
}

func TestDoRetriesUpToBudgetOnServiceUnavailable(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{{status: http.StatusServiceUnavailable}}}
	sleeper := &recordingSleeper{}
	c := newTestClient(t, 3, transport, sleeper)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: "https://example.test/draw"})
	require.Error(t, err)

	failure, ok := IsFailure(err)
	require.True(t, ok)
	require.False(t, failure.Terminal)
	require.Equal(t, 3, failure.Attempts)
	require.Equal(t, http.StatusServiceUnavailable, failure.StatusCode)
	require.Equal(t, 3, transport.calls)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestDoStopsImmediatelyOnNotFound(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{{status: http.StatusNotFound}}}
	sleeper := &recordingSleeper{}
	c := newTestClient(t, 5, transport, sleeper)

	_, err := c.Do(context.Background(), Request{URL: "https://example.test/missing"})
	failure, ok := IsFailure(err)
	require.True(t, ok)
	require.True(t, failure.Terminal)
	require.Equal(t, 1, failure.Attempts)
	require.Equal(t, 1, transport.calls)
	require.Empty(t, sleeper.delays)
}

func TestDoRecoversAfterConnectionErrors(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{
		{err: errors.New("connection reset by peer")},
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK},
	}}
	sleeper := &recordingSleeper{}
	c := newTestClient(t, 8, transport, sleeper)

	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: "https://example.test/store", Form: map[string]string{"drwNo": "1"}})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Attempts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1", transport.lastRq.Form["drwNo"])
	// two backoffs, then the pacing delay after success
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, time.Second}, sleeper.delays)
}

func TestDoPacesEvenOnFirstSuccess(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{{status: http.StatusOK}}}
	sleeper := &recordingSleeper{}
	c := newTestClient(t, 1, transport, sleeper)

	_, err := c.Do(context.Background(), Request{URL: "https://example.test"})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{time.Second}, sleeper.delays)
}

func TestDoReturnsFailureWhenContextCanceled(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{steps: []step{{status: http.StatusOK}}}
	c := newTestClient(t, 3, transport, &recordingSleeper{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Do(ctx, Request{URL: "https://example.test"})
	require.ErrorIs(t, err, context.Canceled)
	failure, ok := IsFailure(err)
	require.True(t, ok)
	require.True(t, failure.Terminal)
	require.Zero(t, transport.calls)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxAttempts: 0}, &scriptedTransport{}, &recordingSleeper{}, nil)
	require.Error(t, err)
	_, err = New(Config{MaxAttempts: 1}, nil, &recordingSleeper{}, nil)
	require.Error(t, err)
}

func TestRetryPolicyClassify(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(Config{MaxAttempts: 3, BackoffBase: time.Second})
	cases := []struct {
		status int
		err    error
		want   Outcome
	}{
		{status: 200, want: OutcomeSuccess},
		{status: 204, want: OutcomeSuccess},
		{status: 429, want: OutcomeRetry},
		{status: 500, want: OutcomeRetry},
		{status: 502, want: OutcomeRetry},
		{status: 503, want: OutcomeRetry},
		{status: 504, want: OutcomeRetry},
		{status: 501, want: OutcomeTerminal},
		{status: 404, want: OutcomeTerminal},
		{status: 403, want: OutcomeTerminal},
		{err: errors.New("dial tcp: no such host"), want: OutcomeRetry},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, p.Classify(tc.status, tc.err), "status %d err %v", tc.status, tc.err)
	}
	require.Equal(t, 3*time.Second, p.Backoff(3))
	require.Equal(t, time.Second, p.Backoff(0))
}
