package trends

import (
	"context"
	"time"
)

// Fetcher retrieves the raw provider payload for one search term over a
// window. Implementations own retry, rate limiting, and credentials; a call
// is idempotent from the caller's perspective.
type Fetcher interface {
	Fetch(ctx context.Context, term string, window FetchWindow) (RawResponse, error)
}

// Normalizer flattens a raw provider payload into uniform records for one
// term. It is the only place that knows the provider's response shape.
type Normalizer interface {
	Normalize(term string, raw RawResponse) ([]TrendRecord, error)
}

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next one. Attempt numbers are 1-based counts of attempts
// already made.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (injectable for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// RunStore persists run bookkeeping records. It never holds trend records;
// the dataset file is the only home for those.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
