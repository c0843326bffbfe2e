// Package retry implements the fixed-delay retry policies and the randomized politeness wait used across the scraper.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type realSleeper struct{}

// RealSleeper sleeps on a timer.
var RealSleeper Sleeper = realSleeper{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was produced by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Policy retries an operation up to MaxAttempts times, sleeping Delay between attempts.
type Policy struct {
	Name        string
	MaxAttempts int
	Delay       time.Duration
	Sleeper     Sleeper

	// OnRetry, when set, is called after every failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, returns a permanent error, the attempts run out or ctx is cancelled.
// The returned error is the last one fn produced.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleeper := p.Sleeper
	if sleeper == nil {
		sleeper = RealSleeper
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%s: %w (last error: %v)", p.Name, err, lastErr)
			}
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		log.Warnf("🔁 %s attempt %d/%d failed: %v, retrying in %s", p.Name, attempt, attempts, err, p.Delay)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if err := sleeper.Sleep(ctx, p.Delay); err != nil {
			return zero, fmt.Errorf("%s: %w (last error: %v)", p.Name, err, lastErr)
		}
	}

	log.Errorf("❌ %s failed after %d attempts: %v", p.Name, attempts, lastErr)
	return zero, lastErr
}
