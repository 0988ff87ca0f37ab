// Package retry runs an operation a bounded number of times with backoff
// between attempts.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
)

const defaultDelay = 25 * time.Millisecond

// Backoff returns the delay to wait after the given 1-based attempt.
type Backoff func(attempt int) time.Duration

// Config controls the retry loop.
type Config struct {
	// MaxAttempts is the total attempt budget, including the first call.
	// Zero or negative means a single attempt.
	MaxAttempts int

	// Backoff computes the inter-attempt delay. Defaults to jittered
	// exponential backoff starting at 25ms.
	Backoff Backoff

	// ShouldRetry reports whether the error is worth another attempt.
	// Defaults to retrying every error.
	ShouldRetry func(error) bool
}

func (c *Config) normalize() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Backoff == nil {
		c.Backoff = Exponential(defaultDelay)
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = func(error) bool { return true }
	}
}

// Exponential doubles the base delay each attempt and adds up to 50% jitter.
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		return d + time.Duration(rand.Int64N(int64(d/2)+1))
	}
}

// Constant waits the same delay between every attempt.
func Constant(delay time.Duration) Backoff {
	return func(int) time.Duration { return delay }
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget runs out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for operations that produce a value. On failure it
// returns the error from the last attempt; a cancelled context wraps both the
// context error and the last attempt's error.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	cfg.normalize()

	var (
		result T
		err    error
	)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		result, err = fn()
		if err == nil || !cfg.ShouldRetry(err) || attempt >= cfg.MaxAttempts {
			return result, err
		}

		timer.Reset(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			return zero, errors.Wrap(err, ctx.Err().Error())
		case <-timer.C:
		}
	}
}
