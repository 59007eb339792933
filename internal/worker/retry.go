package worker

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/veracity-social/veracity/internal/agent"
)

// retrySleepFunc is the sleep function used between attempts (injectable
// for tests).
var retrySleepFunc = sleepCtx

// Retry runs fn with exponential backoff. Transient errors (timeouts, rate
// limits, network failures) are retried up to maxAttempts with the delay
// doubling from baseBackoff; authentication errors fail on the first
// attempt and are never retried.
func Retry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, agent.ErrAuthentication) {
			return err
		}
		if !IsTransient(err) {
			return err
		}
		if attempt < maxAttempts-1 {
			backoff := baseBackoff << uint(attempt)
			if sleepErr := retrySleepFunc(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return err
}

// IsTransient reports whether an error is worth retrying: timeouts, rate
// limits, and network-level failures. Anything else is treated as a
// permanent stage failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "status 429") ||
		strings.Contains(msg, "status 500") ||
		strings.Contains(msg, "status 502") ||
		strings.Contains(msg, "status 503") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
