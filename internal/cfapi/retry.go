package cfapi

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudflare/cloudflare-go/v6"
	"github.com/cockroachdb/errors"
)

// RetryPolicy defines retry behavior for provider calls: bounded
// attempts with deterministic exponential backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the delay before the second attempt; it doubles
	// per attempt up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured:
// three attempts, 500ms base delay, capped at 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  4 * time.Second,
	}
}

// BackoffDuration calculates the backoff after the given failed attempt
// (1-based).
func (p RetryPolicy) BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := p.BackoffBase
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > p.BackoffMax {
			break
		}
	}

	if backoff > p.BackoffMax {
		backoff = p.BackoffMax
	}

	return backoff
}

// Do runs fn until it succeeds, fails permanently, or the attempt
// budget is spent. onRetry, if non-nil, is called before each backoff
// sleep. The context aborts the wait between attempts, never a running
// attempt (fn observes the context itself).
func (p RetryPolicy) Do(
	ctx context.Context,
	fn func() error,
	onRetry func(attempt int, delay time.Duration, err error),
) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !IsRetryable(err) || attempt == attempts {
			return err
		}

		delay := p.BackoffDuration(attempt)

		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(err, "retry aborted: %v", ctx.Err())
		case <-time.After(delay):
		}
	}

	return err
}

// IsRetryable reports whether an error is transient. Rate limiting,
// request timeouts, and server-side failures are retried; any other
// provider response is treated as permanent. Errors that never reached
// the provider (transport failures) are retried, except a canceled
// context.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *cloudflare.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return true
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.StatusCode >= http.StatusInternalServerError && apiErr.StatusCode < 600:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// IsNotFound reports whether the provider answered 404.
func IsNotFound(err error) bool {
	var apiErr *cloudflare.Error

	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
