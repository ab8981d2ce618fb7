package faulttolerance

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var errBoom = errors.New("boom")

func TestCircuitBreakerLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 2, Timeout: time.Minute, SuccessThreshold: 2}, quietLogger())
	cb.now = func() time.Time { return now }
	ctx := context.Background()
	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerReopensFromHalfOpen(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second}, quietLogger())
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	_ = cb.Execute(ctx, func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerCanceledContext(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return nil }), context.Canceled)
}

func newTestRetryer(cfg RetryConfig) (*Retryer, *[]time.Duration) {
	r := NewRetryer(cfg, quietLogger())
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestRetryerSucceedsEventually(t *testing.T) {
	r, slept := newTestRetryer(RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, JitterRange: 0})

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
}

func TestRetryerGivesUp(t *testing.T) {
	r, _ := newTestRetryer(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestRetryerNonRetryable(t *testing.T) {
	errTransient := errors.New("transient")
	r, slept := newTestRetryer(RetryConfig{MaxAttempts: 5, Retryable: []error{errTransient}})

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRetryerDelay(t *testing.T) {
	r, _ := newTestRetryer(RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2})
	r.config.JitterRange = 0

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExecuteWithCircuitBreaker(t *testing.T) {
	r, _ := newTestRetryer(RetryConfig{MaxAttempts: 3})
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour}, quietLogger())

	calls := 0
	err := r.ExecuteWithCircuitBreaker(context.Background(), cb, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}
