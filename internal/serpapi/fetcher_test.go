package serpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

type searchResult struct {
	raw trends.RawResponse
	err error
}

// scriptedSearcher returns canned results in order and counts calls.
type scriptedSearcher struct {
	results []searchResult
	calls   int
}

func (s *scriptedSearcher) Search(_ context.Context, _ string, _ trends.FetchWindow) (trends.RawResponse, error) {
	if s.calls >= len(s.results) {
		s.calls++
		return nil, errors.New("scripted searcher called past its script")
	}
	r := s.results[s.calls]
	s.calls++
	return r.raw, r.err
}

func testWindow() trends.FetchWindow {
	return trends.FetchWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
	}
}

func newTestFetcher(t *testing.T, client searcher, maxAttempts int) (*RetryingFetcher, *[]time.Duration) {
	t.Helper()
	policy := trends.NewExponentialRetryPolicy(maxAttempts, 2*time.Second, 60*time.Second, IsTransient)
	f := NewRetryingFetcher(client, policy, 0, zap.NewNop())
	var sleeps []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return f, &sleeps
}

func TestFetchRetriesTransientFailuresThenSucceeds(t *testing.T) {
	t.Parallel()

	transient := &TransientError{Term: "vpn", StatusCode: 503, Message: "service unavailable"}
	client := &scriptedSearcher{results: []searchResult{
		{err: transient},
		{err: transient},
		{err: transient},
		{err: transient},
		{raw: trends.RawResponse(`{"interest_over_time":{"timeline_data":[]}}`)},
	}}
	f, sleeps := newTestFetcher(t, client, 5)

	raw, err := f.Fetch(context.Background(), "vpn", testWindow())
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Equal(t, 5, client.calls, "expected exactly five attempts")
	require.Len(t, *sleeps, 4, "expected a backoff before each retry")
}

func TestFetchFailsFastOnPermanentError(t *testing.T) {
	t.Parallel()

	client := &scriptedSearcher{results: []searchResult{
		{err: &PermanentError{Term: "vpn", StatusCode: 401, Message: "invalid api key"}},
	}}
	f, sleeps := newTestFetcher(t, client, 5)

	_, err := f.Fetch(context.Background(), "vpn", testWindow())
	require.Error(t, err)

	var pe *PermanentError
	require.ErrorAs(t, err, &pe)
	var fe *trends.FetchExhaustedError
	require.False(t, errors.As(err, &fe), "permanent failure must not read as exhaustion")
	require.Equal(t, 1, client.calls, "permanent errors get exactly one attempt")
	require.Empty(t, *sleeps)
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	transient := &TransientError{Term: "vpn", Message: "rate limit reached"}
	client := &scriptedSearcher{results: []searchResult{
		{err: transient}, {err: transient}, {err: transient}, {err: transient}, {err: transient},
	}}
	f, sleeps := newTestFetcher(t, client, 5)

	_, err := f.Fetch(context.Background(), "vpn", testWindow())
	require.Error(t, err)

	var fe *trends.FetchExhaustedError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 5, fe.Attempts)
	require.Equal(t, "vpn", fe.Term)

	var te *TransientError
	require.ErrorAs(t, err, &te, "last underlying error should ride along")
	require.Equal(t, 5, client.calls)
	require.Len(t, *sleeps, 4)
}

func TestFetchStopsWhenContextEndsDuringBackoff(t *testing.T) {
	t.Parallel()

	client := &scriptedSearcher{results: []searchResult{
		{err: &TransientError{Term: "vpn", Message: "timeout"}},
	}}
	f, _ := newTestFetcher(t, client, 5)
	f.sleep = func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := f.Fetch(context.Background(), "vpn", testWindow())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, client.calls)
}

func TestFetchBackoffGrowsBetweenRetries(t *testing.T) {
	t.Parallel()

	transient := &TransientError{Term: "vpn", Message: "502 bad gateway"}
	client := &scriptedSearcher{results: []searchResult{
		{err: transient}, {err: transient}, {err: transient},
		{raw: trends.RawResponse(`{}`)},
	}}
	f, sleeps := newTestFetcher(t, client, 5)

	_, err := f.Fetch(context.Background(), "vpn", testWindow())
	require.NoError(t, err)
	require.Len(t, *sleeps, 3)

	// Base 2s doubling with up to base-sized jitter: each delay must at
	// least match the un-jittered floor and stay below the next floor plus
	// jitter headroom.
	floors := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, d := range *sleeps {
		require.GreaterOrEqual(t, d, floors[i])
		require.Less(t, d, floors[i]+2*floors[0])
	}
}
