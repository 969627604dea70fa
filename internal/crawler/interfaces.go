package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrSessionLost marks a browser session that can no longer be driven. It is
// fatal for the worker that owns the session.
var ErrSessionLost = errors.New("browser session lost")

// Session is an exclusively owned browser tab.
type Session interface {
	// Navigate loads url and returns the rendered page.
	Navigate(ctx context.Context, url string) (Page, error)
	// CurrentURL reports the location of the tab. It fails with ErrSessionLost
	// once the browser is gone.
	CurrentURL(ctx context.Context) (string, error)
	// Evaluate runs a script in the page and decodes the result into out.
	Evaluate(ctx context.Context, script string, out any) error
	Close() error
}

// SessionOptions isolate one worker's browser.
type SessionOptions struct {
	Worker     int
	Proxy      string
	ProfileDir string
}

// SessionFactory opens browser sessions for workers.
type SessionFactory interface {
	Open(ctx context.Context, opts SessionOptions) (Session, error)
}

// Classifier reports whether a rendered page is a rate-limit response.
type Classifier interface {
	IsRateLimited(page Page) bool
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(Page) bool

// IsRateLimited calls f(page).
func (f ClassifierFunc) IsRateLimited(page Page) bool {
	return f(page)
}

// Store persists crawl records. Implementations are driven by a single
// writer and need no internal locking for mutations.
type Store interface {
	StartScan(ctx context.Context, startedAt time.Time) (Scan, error)
	EnsureCommunity(ctx context.Context, name string) (int64, error)
	UpsertItem(ctx context.Context, item Item) error
	UpsertMedia(ctx context.Context, media Media) error
	UpsertReply(ctx context.Context, reply Reply) error
	PutItemSnapshot(ctx context.Context, snap ItemSnapshot) error
	PutReplySnapshot(ctx context.Context, snap ReplySnapshot) error
	Close() error
}

// MetricsStore reads snapshot history and replaces derived rows for a scan.
type MetricsStore interface {
	ItemSnapshotPairs(ctx context.Context, scanID int64) ([]ItemSnapshotPair, error)
	ReplySnapshotPairs(ctx context.Context, scanID int64) ([]ReplySnapshotPair, error)
	ReplaceItemMetrics(ctx context.Context, scanID int64, rows []ItemMetric) error
	ReplaceReplyMetrics(ctx context.Context, scanID int64, rows []ReplyMetric) error
	TopItems(ctx context.Context, scanID int64, limit int) ([]ItemMetric, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher pushes scan completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
