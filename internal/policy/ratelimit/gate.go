// Package ratelimit implements the process-wide rate gate shared by all crawl
// workers: a token bucket bounding the aggregate request rate plus a cooldown
// deadline that any worker can push later after a rate-limit response.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/community-crawler/internal/clock/system"
	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/metrics"
)

// Config holds rate gate configuration.
type Config struct {
	// RequestsPerMinute is the aggregate budget across all workers. Values
	// below 1 are clamped to 1.
	RequestsPerMinute int
	// Burst defaults to 1 so tokens replenish continuously.
	Burst int
	// Clock defaults to the system clock. It is read to compute the cooldown
	// deadline and the remaining wait; the sleep itself runs on real time.
	Clock crawler.Clock
}

// Gate guards every navigation attempt. It is safe for concurrent use and is
// handed to each worker explicitly.
type Gate struct {
	limiter       *rate.Limiter
	clock         crawler.Clock
	cooldownUntil atomic.Int64
}

// NewGate creates a Gate.
func NewGate(cfg Config) *Gate {
	rpm := cfg.RequestsPerMinute
	if rpm < 1 {
		rpm = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	clock := cfg.Clock
	if clock == nil {
		clock = system.New()
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst),
		clock:   clock,
	}
}

// Acquire blocks until any active cooldown has elapsed and a token is
// available. A cooldown extended while the caller waits for its token is
// waited out before Acquire returns. It fails only when ctx ends first.
func (g *Gate) Acquire(ctx context.Context) error {
	start := time.Now()
	var served int64
	for {
		deadline, err := g.waitCooldown(ctx, served)
		if err != nil {
			return err
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate gate wait: %w", err)
		}
		if g.cooldownUntil.Load() == deadline {
			break
		}
		served = deadline
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

// ExtendCooldown moves the shared deadline to now+d when that is later than
// the current deadline. It reports whether the deadline moved.
func (g *Gate) ExtendCooldown(d time.Duration) bool {
	target := g.clock.Now().Add(d).UnixNano()
	for {
		current := g.cooldownUntil.Load()
		if target <= current {
			return false
		}
		if g.cooldownUntil.CompareAndSwap(current, target) {
			metrics.IncCooldownExtension()
			return true
		}
	}
}

// CooldownUntil returns the current deadline, or the zero time when no
// cooldown was ever set.
func (g *Gate) CooldownUntil() time.Time {
	nanos := g.cooldownUntil.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// waitCooldown sleeps until the deadline passes and returns the deadline it
// waited out. It re-reads the deadline after each sleep because another
// worker may have extended it meanwhile. A deadline equal to served has
// already been slept through once, so a clock that does not advance cannot
// hold the caller forever.
func (g *Gate) waitCooldown(ctx context.Context, served int64) (int64, error) {
	for {
		deadline := g.cooldownUntil.Load()
		if deadline == served {
			return deadline, nil
		}
		wait := time.Duration(deadline - g.clock.Now().UnixNano())
		if wait <= 0 {
			return deadline, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, fmt.Errorf("rate gate cooldown: %w", ctx.Err())
		case <-timer.C:
		}
		served = deadline
	}
}
