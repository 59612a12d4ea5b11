package trends

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// ExponentialRetryPolicy implements RetryPolicy with capped exponential
// backoff and additive jitter. Which errors count as transient is supplied
// by the caller, so the policy stays independent of any particular API.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   func(error) bool
	jitter      func(limit time.Duration) time.Duration
}

// NewExponentialRetryPolicy builds a policy. retryable classifies errors as
// transient; a nil predicate treats every non-context error as transient.
func NewExponentialRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, retryable func(error) bool) *ExponentialRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		retryable:   retryable,
		jitter:      randomJitter,
	}
}

// MaxAttempts returns the attempt budget.
func (p *ExponentialRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry reports whether another attempt is allowed after attempt
// attempts have failed. Context cancellation and deadline expiry are never
// retried regardless of the predicate.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.retryable == nil {
		return true
	}
	return p.retryable(err)
}

// Backoff returns the wait before attempt attempt+1: baseDelay doubled per
// completed attempt, capped at maxDelay, plus jitter in [0, baseDelay).
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay) + p.jitter(p.baseDelay)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
