package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy defines an exponential backoff schedule for transient failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultPolicy covers short network calls such as price lookups.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      true,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, the attempts are exhausted, the error is
// permanent, or the context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		var innerErr error
		out, innerErr = fn()
		return innerErr
	})
	return out, err
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}
