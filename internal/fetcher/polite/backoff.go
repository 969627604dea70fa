package polite

import (
	"context"
	"math"
	"time"
)

// Backoff returns the wait before retrying after the given zero-based
// attempt: initial doubled per attempt, capped at max. The sequence carries
// no jitter so it is reproducible.
func Backoff(initial, max time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(initial) * math.Pow(2, float64(attempt))
	if max > 0 && delay > float64(max) {
		return max
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Penalty returns the shared cooldown extension applied after a rate-limit
// response on the given zero-based attempt.
func Penalty(base, step time.Duration, attempt int) time.Duration {
	return base + time.Duration(attempt)*step
}

func timerSleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
