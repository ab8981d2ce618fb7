// Package faulttolerance holds the retry and circuit breaker helpers used
// around external dependencies: the storage bootstrap and the event broker.
package faulttolerance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig holds configuration for retries with exponential backoff.
type RetryConfig struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterRange float64 // 0.0 to 1.0

	// Retryable limits retries to errors matching one of these via errors.Is.
	// Empty means every error is retried.
	Retryable []error
}

func DefaultRetryConfig(name string) RetryConfig {
	return RetryConfig{
		Name:        name,
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		JitterRange: 0.1,
	}
}

type Retryer struct {
	config RetryConfig
	logger *logrus.Entry
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryer(config RetryConfig, logger *logrus.Logger) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 1.0 {
		config.Multiplier = 2.0
	}
	if config.JitterRange < 0 || config.JitterRange > 1.0 {
		config.JitterRange = 0.1
	}
	if config.Name == "" {
		config.Name = "retryer"
	}

	return &Retryer{
		config: config,
		logger: logger.WithFields(logrus.Fields{"component": "faulttolerance", "retryer": config.Name}),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done.
func (r *Retryer) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Infof("succeeded on attempt %d", attempt)
			}
			return nil
		}
		lastErr = err

		if !r.retryable(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		r.logger.WithError(err).Warnf("attempt %d failed, retrying in %v", attempt, delay)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.logger.WithError(lastErr).Errorf("all %d attempts failed", r.config.MaxAttempts)
	return fmt.Errorf("%s: max retry attempts (%d) exceeded: %w", r.config.Name, r.config.MaxAttempts, lastErr)
}

// delay is BaseDelay * Multiplier^(attempt-1), capped at MaxDelay, with jitter,
// never below BaseDelay.
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}

	if r.config.JitterRange > 0 {
		jitter := r.rng.Float64() * r.config.JitterRange * d
		if r.rng.Float64() < 0.5 {
			d -= jitter
		} else {
			d += jitter
		}
	}

	if d < float64(r.config.BaseDelay) {
		d = float64(r.config.BaseDelay)
	}
	return time.Duration(d)
}

func (r *Retryer) retryable(err error) bool {
	if len(r.config.Retryable) == 0 {
		return true
	}
	for _, target := range r.config.Retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ExecuteWithCircuitBreaker retries fn through cb. An open breaker counts as
// a failed attempt.
func (r *Retryer) ExecuteWithCircuitBreaker(ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) error) error {
	return r.Execute(ctx, func(ctx context.Context) error {
		return cb.Execute(ctx, func() error { return fn(ctx) })
	})
}
