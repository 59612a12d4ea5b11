package trends

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks configuration that can never produce a valid run
// (non-positive lookback, empty term list, missing credential). It is fatal
// and never retried.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrRunNotFound is returned by run stores for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// FetchExhaustedError is returned after the retry budget for one term is
// spent on transient failures. Err holds the last underlying error.
type FetchExhaustedError struct {
	Term     string
	Attempts int
	Err      error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch for %q exhausted after %d attempts: %v", e.Term, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }

// MalformedResponseError is returned when a provider payload cannot be
// parsed into records. It is distinct from a payload that parses to zero
// data points, which is valid.
type MalformedResponseError struct {
	Term   string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response for %q: %s", e.Term, e.Reason)
}

// ValidationError signals that a run's records failed validation and were
// not written. The full report rides along for the caller.
type ValidationError struct {
	Report ValidationReport
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s), %d warning(s)",
		len(e.Report.Errors), len(e.Report.Warnings))
}

// WriteError wraps a dataset I/O failure. The previously persisted dataset
// is untouched when this is returned; writes are all-or-nothing.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write dataset %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
