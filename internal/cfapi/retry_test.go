package cfapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/cloudflare/cloudflare-go/v6"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avskog/cloudflare-tunnel-sync/internal/cfapi"
)

var errTransport = errors.New("dial tcp: connection refused")

// apiError populates Request and Response so the SDK's Error() method
// can format the fixture the way a live response would.
func apiError(statusCode int) *cloudflare.Error {
	return &cloudflare.Error{
		StatusCode: statusCode,
		Request: &http.Request{
			Method: http.MethodGet,
			URL:    &url.URL{Scheme: "https", Host: "api.cloudflare.com", Path: "/client/v4"},
		},
		Response: &http.Response{
			StatusCode: statusCode,
			Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		},
	}
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	policy := cfapi.DefaultRetryPolicy()

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{name: "attempt zero has no backoff", attempt: 0, expected: 0},
		{name: "first failure", attempt: 1, expected: 500 * time.Millisecond},
		{name: "second failure doubles", attempt: 2, expected: time.Second},
		{name: "third failure doubles again", attempt: 3, expected: 2 * time.Second},
		{name: "fourth failure hits the cap", attempt: 4, expected: 4 * time.Second},
		{name: "cap holds for later attempts", attempt: 10, expected: 4 * time.Second},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, policy.BackoffDuration(testCase.attempt))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "request timeout 408", err: apiError(http.StatusRequestTimeout), expected: true},
		{name: "rate limited 429", err: apiError(http.StatusTooManyRequests), expected: true},
		{name: "server error 500", err: apiError(http.StatusInternalServerError), expected: true},
		{name: "server error 503", err: apiError(http.StatusServiceUnavailable), expected: true},
		{name: "bad request 400", err: apiError(http.StatusBadRequest), expected: false},
		{name: "auth failure 403", err: apiError(http.StatusForbidden), expected: false},
		{name: "not found 404", err: apiError(http.StatusNotFound), expected: false},
		{name: "validation failure 422", err: apiError(http.StatusUnprocessableEntity), expected: false},
		{name: "canceled context", err: context.Canceled, expected: false},
		{name: "transport error", err: errTransport, expected: true},
		{name: "wrapped transport error", err: errors.Wrap(errTransport, "fetch"), expected: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, cfapi.IsRetryable(testCase.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, cfapi.IsNotFound(apiError(http.StatusNotFound)))
	assert.False(t, cfapi.IsNotFound(apiError(http.StatusBadRequest)))
	assert.False(t, cfapi.IsNotFound(errTransport))
	assert.False(t, cfapi.IsNotFound(nil))
}

func fastPolicy() cfapi.RetryPolicy {
	return cfapi.RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0

	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return apiError(http.StatusServiceUnavailable)
		}

		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	permanent := apiError(http.StatusBadRequest)

	err := fastPolicy().Do(context.Background(), func() error {
		calls++

		return permanent
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx must fail without retries")
}

func TestDo_ExhaustsAttemptBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	transient := apiError(http.StatusServiceUnavailable)

	var retries []int

	err := fastPolicy().Do(context.Background(), func() error {
		calls++

		return transient
	}, func(attempt int, _ time.Duration, _ error) {
		retries = append(retries, attempt)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries, "onRetry fires between attempts, not after the last")
}

func TestDo_ContextCancelAbortsBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	policy := cfapi.RetryPolicy{MaxAttempts: 3, BackoffBase: time.Minute, BackoffMax: time.Minute}

	start := time.Now()
	err := policy.Do(ctx, func() error {
		calls++

		return apiError(http.StatusServiceUnavailable)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "canceled context must not wait out the backoff")
	assert.Contains(t, err.Error(), "retry aborted")
}
