package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAuth signals that the upstream rejected our credentials (401). It aborts
// the whole polling cycle; retrying without operator intervention is useless.
var ErrAuth = errors.New("upstream authentication failed")

// ErrForbidden signals a 403 that did not carry a throttle hint. Treated like
// an auth failure because it points at a credential or permission problem.
var ErrForbidden = errors.New("upstream access forbidden")

// RateLimitedError reports an upstream throttle with an explicit resume delay.
// It is not a failure from the operator's perspective; callers pause and retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// TransientError wraps a network-level failure that exhausted its retries.
// The affected account is deferred to its next due time.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient upstream error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every offending field of a request, not just the
// first one found.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ErrServiceStale marks the window between process start and the first
// completed polling cycle, during which served data would be misleading.
var ErrServiceStale = errors.New("no polling cycle has completed yet")
