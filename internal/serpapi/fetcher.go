package serpapi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mediatechlab/trendwatch/internal/metrics"
	"github.com/mediatechlab/trendwatch/internal/trends"
)

// searcher is the single provider call the fetcher wraps. *Client satisfies
// it; tests substitute scripted fakes.
type searcher interface {
	Search(ctx context.Context, term string, window trends.FetchWindow) (trends.RawResponse, error)
}

// RetryingFetcher retries transient provider failures with exponential
// backoff and paces all outbound requests through a shared token bucket.
// Permanent failures are returned immediately; once the attempt budget is
// spent on transient ones the caller gets a *trends.FetchExhaustedError
// wrapping the last failure.
type RetryingFetcher struct {
	client  searcher
	policy  trends.RetryPolicy
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     *zap.Logger
}

// NewRetryingFetcher wraps client with policy. rps caps outbound request
// rate across retries and terms; rps <= 0 disables pacing.
func NewRetryingFetcher(client searcher, policy trends.RetryPolicy, rps float64, log *zap.Logger) *RetryingFetcher {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RetryingFetcher{
		client:  client,
		policy:  policy,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepContext,
		log:     log,
	}
}

// Fetch returns the raw provider payload for term over window.
func (f *RetryingFetcher) Fetch(ctx context.Context, term string, window trends.FetchWindow) (trends.RawResponse, error) {
	for attempt := 1; ; attempt++ {
		waitStart := time.Now()
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		if d := time.Since(waitStart); d > time.Millisecond {
			metrics.ObserveRateLimitDelay(d)
		}

		start := time.Now()
		raw, err := f.client.Search(ctx, term, window)
		metrics.ObserveProviderRequest(outcomeLabel(err), time.Since(start))
		if err == nil {
			if attempt > 1 {
				f.log.Info("fetch recovered after retries",
					zap.String("term", term),
					zap.Int("attempts", attempt))
			}
			return raw, nil
		}

		if !f.policy.ShouldRetry(err, attempt) {
			if IsTransient(err) {
				return nil, &trends.FetchExhaustedError{Term: term, Attempts: attempt, Err: err}
			}
			return nil, err
		}

		delay := f.policy.Backoff(attempt)
		f.log.Warn("transient fetch failure, backing off",
			zap.String("term", term),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		metrics.IncProviderRetry()
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsTransient(err):
		return "transient_error"
	default:
		return "permanent_error"
	}
}

// sleepContext sleeps for d unless ctx ends first.
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
