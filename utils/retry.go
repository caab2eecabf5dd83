package utils

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy holds the parameters for the bounded retry strategy. Sleep is
// injectable so tests can run with a fake clock.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64 // fraction of the delay randomized, e.g. 0.25
	Sleep       func(time.Duration)
	Logger      *Logger
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn with exponential back-off retry logic. Errors marked
// Permanent abort the loop and are returned unwrapped.
func (r *RetryPolicy) Do(operationName string, fn func() error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < r.MaxAttempts {
			wait := r.jittered(delay)
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v — retrying in %v",
				operationName, attempt, r.MaxAttempts, lastErr, wait)
			sleep(wait)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, r.MaxAttempts, lastErr)
}

func (r *RetryPolicy) jittered(delay time.Duration) time.Duration {
	if r.Jitter <= 0 {
		return delay
	}
	spread := float64(delay) * r.Jitter
	return delay + time.Duration((rand.Float64()*2-1)*spread)
}
