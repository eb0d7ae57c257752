package ollama

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	result, err := retryWithBackoff(context.Background(), quickRetryConfig(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", &statusError{code: http.StatusServiceUnavailable, body: "busy"}
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	transient := &statusError{code: http.StatusTooManyRequests, body: "slow down"}
	_, err := retryWithBackoff(context.Background(), quickRetryConfig(), func() (int, error) {
		attempts++
		return 0, transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_StopsOnNonRetryable(t *testing.T) {
	attempts := 0
	_, err := retryWithBackoff(context.Background(), quickRetryConfig(), func() (int, error) {
		attempts++
		return 0, &statusError{code: http.StatusBadRequest, body: "bad payload"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retryWithBackoff(ctx, quickRetryConfig(), func() (int, error) {
		return 0, errors.New("transport down")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"too many requests", &statusError{code: http.StatusTooManyRequests}, true},
		{"server error", &statusError{code: http.StatusInternalServerError}, true},
		{"bad gateway", &statusError{code: http.StatusBadGateway}, true},
		{"not found", &statusError{code: http.StatusNotFound}, false},
		{"bad request", &statusError{code: http.StatusBadRequest}, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"transport error", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
