package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// Policy configures bounded retry behavior
type Policy struct {
	MaxAttempts int                             // Total attempts including the first
	Delay       func(attempt int) time.Duration // Wait after the given failed attempt (1-based)
	Retryable   func(error) bool                // Nil means every error is retried
}

// Exponential returns a delay function that starts at base, multiplies by
// multiplier after each attempt and never exceeds max
func Exponential(base, max time.Duration, multiplier float64) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := float64(base)
		for i := 1; i < attempt; i++ {
			d *= multiplier
			if time.Duration(d) >= max {
				return max
			}
		}
		if time.Duration(d) > max {
			return max
		}
		return time.Duration(d)
	}
}

// Fixed returns a delay function reading from an explicit schedule. Attempts
// past the end of the schedule reuse its last entry.
func Fixed(delays ...time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if len(delays) == 0 {
			return 0
		}
		if attempt-1 < len(delays) {
			return delays[attempt-1]
		}
		return delays[len(delays)-1]
	}
}

// Constant returns a delay function that always waits d
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Default returns the policy used for outbound API calls
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       Exponential(100*time.Millisecond, 5*time.Second, 2.0),
	}
}

// Do runs fn until it succeeds, the policy is exhausted, the error is not
// retryable or ctx is cancelled. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for functions that return a value
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Delay != nil {
			wait = p.Delay(attempt)
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// transientMarkers are driver messages that indicate a temporary condition
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"busy",
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"i/o timeout",
	"too many requests",
	"service unavailable",
}

// IsTransient reports whether err looks like a temporary infrastructure
// failure worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var marked interface{ Transient() bool }
	if errors.As(err, &marked) {
		return marked.Transient()
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
