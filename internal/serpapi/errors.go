package serpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TransientError is a provider failure worth retrying: rate limiting,
// server-side errors, timeouts.
type TransientError struct {
	Term       string
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("serpapi transient error for %q (status %d): %s", e.Term, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("serpapi transient error for %q: %s", e.Term, e.Message)
}

// PermanentError is a provider failure that retrying cannot fix: a bad API
// key, invalid parameters, an exhausted account. Callers fail fast on it.
type PermanentError struct {
	Term       string
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("serpapi permanent error for %q (status %d): %s", e.Term, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("serpapi permanent error for %q: %s", e.Term, e.Message)
}

// IsTransient reports whether err is worth another attempt. Context
// cancellation and classified permanent errors are not; everything else,
// including unclassified transport failures (dial errors, resets, client
// timeouts), is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *PermanentError
	return !errors.As(err, &pe)
}

// transientKeywords match the provider's error-envelope wording for
// failures that clear on their own: throttling, 5xx conditions, timeouts.
var transientKeywords = []string{
	"rate limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
	"server error",
	"internal error",
	"temporarily unavailable",
	"timeout",
	"timed out",
}

// classifyEnvelope types an error message delivered inside a 200 response.
// The provider frequently reports failures this way instead of via status
// codes, so the message text is the only signal available.
func classifyEnvelope(term, message string) error {
	lower := strings.ToLower(message)
	for _, kw := range transientKeywords {
		if strings.Contains(lower, kw) {
			return &TransientError{Term: term, Message: message}
		}
	}
	return &PermanentError{Term: term, Message: message}
}
