// Package polite drives one navigation at a time through the shared rate
// gate, retrying with exponential backoff when the target answers with a
// rate-limit page and escalating the cooldown for every worker.
package polite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/metrics"
	"github.com/JakeFAU/community-crawler/internal/telemetry"
)

// Gate is the shared limiter every attempt passes through.
type Gate interface {
	Acquire(ctx context.Context) error
	ExtendCooldown(d time.Duration) bool
}

// Knobs tune the retry state machine.
type Knobs struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	OverallDeadline time.Duration
	PenaltyBase     time.Duration
	PenaltyStep     time.Duration
	Verbose         bool
}

// DefaultKnobs mirrors the production defaults.
func DefaultKnobs() Knobs {
	return Knobs{
		MaxAttempts:     3,
		InitialBackoff:  800 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		OverallDeadline: 15 * time.Second,
		PenaltyBase:     20 * time.Second,
		PenaltyStep:     10 * time.Second,
	}
}

func (k Knobs) withDefaults() Knobs {
	def := DefaultKnobs()
	if k.MaxAttempts <= 0 {
		k.MaxAttempts = def.MaxAttempts
	}
	if k.InitialBackoff <= 0 {
		k.InitialBackoff = def.InitialBackoff
	}
	if k.MaxBackoff <= 0 {
		k.MaxBackoff = def.MaxBackoff
	}
	if k.OverallDeadline <= 0 {
		k.OverallDeadline = def.OverallDeadline
	}
	if k.PenaltyBase <= 0 {
		k.PenaltyBase = def.PenaltyBase
	}
	if k.PenaltyStep <= 0 {
		k.PenaltyStep = def.PenaltyStep
	}
	return k
}

// Fetcher is owned by a single worker together with its session.
type Fetcher struct {
	session    crawler.Session
	gate       Gate
	classifier crawler.Classifier
	knobs      Knobs
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a Fetcher.
func New(session crawler.Session, gate Gate, classifier crawler.Classifier, knobs Knobs, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		session:    session,
		gate:       gate,
		classifier: classifier,
		knobs:      knobs.withDefaults(),
		sleep:      timerSleep,
		now:        time.Now,
		logger:     logger,
	}
}

// Fetch navigates to url until a page that is not rate limited loads. The
// boolean is false when every attempt was used up; that is not an error. A
// non-nil error means the session was lost or ctx ended, both of which stop
// the owning worker.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "polite.fetch", attribute.String("url", url))
	defer span.End()

	start := f.now()
	for attempt := 0; attempt < f.knobs.MaxAttempts; attempt++ {
		span.SetAttributes(attribute.Int("attempt", attempt+1))
		if err := f.gate.Acquire(ctx); err != nil {
			return crawler.Page{}, false, fmt.Errorf("polite fetch %s: %w", url, err)
		}

		page, err := f.session.Navigate(ctx, url)
		limited := false
		switch {
		case errors.Is(err, crawler.ErrSessionLost):
			return crawler.Page{}, false, err
		case err != nil && ctx.Err() != nil:
			return crawler.Page{}, false, fmt.Errorf("polite fetch %s: %w", url, ctx.Err())
		case err != nil:
			f.logger.Debug("navigation failed",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		case !f.classifier.IsRateLimited(page):
			if f.knobs.Verbose && attempt > 0 {
				f.logger.Info("recovered after retry", zap.String("url", url), zap.Int("attempt", attempt+1))
			}
			return page, true, nil
		default:
			limited = true
			metrics.IncRateLimited()
			f.gate.ExtendCooldown(Penalty(f.knobs.PenaltyBase, f.knobs.PenaltyStep, attempt))
		}

		if attempt+1 >= f.knobs.MaxAttempts {
			break
		}
		wait := Backoff(f.knobs.InitialBackoff, f.knobs.MaxBackoff, attempt)
		if f.now().Sub(start)+wait > f.knobs.OverallDeadline {
			break
		}
		if f.knobs.Verbose && limited {
			f.logger.Info("rate limited",
				zap.String("url", url),
				zap.Duration("backoff", wait),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", f.knobs.MaxAttempts),
			)
		}
		if err := f.sleep(ctx, wait); err != nil {
			return crawler.Page{}, false, fmt.Errorf("polite fetch %s: %w", url, err)
		}
	}

	if f.knobs.Verbose {
		f.logger.Info("gave up", zap.String("url", url))
	}
	return crawler.Page{}, false, nil
}
