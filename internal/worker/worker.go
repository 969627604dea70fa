// Package worker drives one browser session through an assigned list of
// communities: listing pages, item pages, extraction, and hand-off to the
// write funnel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/extract"
	"github.com/JakeFAU/community-crawler/internal/fetcher/polite"
	"github.com/JakeFAU/community-crawler/internal/funnel"
	"github.com/JakeFAU/community-crawler/internal/metrics"
)

// PageFetcher loads one URL with retries. See polite.Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (crawler.Page, bool, error)
}

// Extractor turns rendered pages into records.
type Extractor interface {
	Listing(page crawler.Page) ([]crawler.ListingEntry, error)
	Post(page crawler.Page, itemID string) (crawler.PostDetail, error)
	NextPage(page crawler.Page) (string, bool, error)
}

// MediaCollector resolves media URLs into rows.
type MediaCollector interface {
	Collect(ctx context.Context, itemID string, urls []string) []crawler.Media
}

// Sink receives write messages.
type Sink interface {
	Send(ctx context.Context, msg funnel.Message) error
}

// Deps are shared by every worker of a scan.
type Deps struct {
	Sessions   crawler.SessionFactory
	Gate       polite.Gate
	Classifier crawler.Classifier
	Extractor  Extractor
	Media      MediaCollector
	Sink       Sink
	// NewFetcher overrides the polite fetcher built around each session.
	NewFetcher func(crawler.Session, *zap.Logger) PageFetcher
}

// Config holds per-worker settings.
type Config struct {
	ScanID      int64
	BaseURL     string
	MaxPages    int
	MaxReplies  int
	Delay       time.Duration
	ProfileBase string
	Proxy       string
	Knobs       polite.Knobs
}

// Worker processes its communities sequentially with one session.
type Worker struct {
	index  int
	deps   Deps
	cfg    Config
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

var errAbort = errors.New("worker aborted")

// New creates the worker with the given index. The index seeds its delay
// jitter and names its browser profile.
func New(index int, deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://old.reddit.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.OldReddit{}
	}
	return &Worker{
		index:  index,
		deps:   deps,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(int64(index))),
		sleep:  sleepCtx,
		logger: logger.With(zap.Int("worker", index)),
	}
}

// Run crawls communities in order and returns the number of items handed to
// the sink. It stops early when the session is lost or ctx ends.
func (w *Worker) Run(ctx context.Context, communities []string) int {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	opts := crawler.SessionOptions{Worker: w.index, Proxy: w.cfg.Proxy}
	if w.cfg.ProfileBase != "" {
		opts.ProfileDir = filepath.Join(w.cfg.ProfileBase, fmt.Sprintf("worker-%d", w.index))
	}
	session, err := w.deps.Sessions.Open(ctx, opts)
	if err != nil {
		w.logger.Error("browser session failed to start", zap.Error(err))
		return 0
	}
	defer func() {
		if err := session.Close(); err != nil {
			w.logger.Debug("session close failed", zap.Error(err))
		}
	}()

	fetcher := w.newFetcher(session)
	saved := 0
	for i, community := range communities {
		start := time.Now()
		n, err := w.crawlCommunity(ctx, session, fetcher, community)
		saved += n
		w.logger.Info("community finished",
			zap.String("community", community),
			zap.Int("position", i+1),
			zap.Int("of", len(communities)),
			zap.Int("saved", n),
			zap.Duration("elapsed", time.Since(start)),
		)
		if err != nil {
			w.logger.Warn("worker stopping", zap.String("community", community), zap.Error(err))
			break
		}
	}
	return saved
}

func (w *Worker) newFetcher(session crawler.Session) PageFetcher {
	if w.deps.NewFetcher != nil {
		return w.deps.NewFetcher(session, w.logger)
	}
	return polite.New(session, w.deps.Gate, w.deps.Classifier, w.cfg.Knobs, w.logger)
}

// crawlCommunity returns a non-nil error only when the worker must stop.
func (w *Worker) crawlCommunity(ctx context.Context, session crawler.Session, fetcher PageFetcher, community string) (int, error) {
	if err := w.deps.Sink.Send(ctx, funnel.BeginCommunity{Name: community}); err != nil {
		return 0, fmt.Errorf("%w: %v", errAbort, err)
	}
	next := fmt.Sprintf("%s/r/%s/top/?t=day", w.cfg.BaseURL, community)
	saved := 0
	for pages := 0; next != "" && pages < w.cfg.MaxPages; pages++ {
		page, ok, err := fetcher.Fetch(ctx, next)
		metrics.ObservePage("listing", ok)
		if err != nil {
			return saved, err
		}
		if !ok {
			w.logger.Info("listing unavailable, skipping community", zap.String("community", community), zap.String("url", next))
			return saved, nil
		}
		entries, err := w.deps.Extractor.Listing(page)
		if err != nil {
			w.logger.Warn("listing parse failed", zap.String("community", community), zap.Error(err))
			return saved, nil
		}
		// Resolve pagination while the tab still shows the listing.
		next = w.nextLink(ctx, session, page)

		for _, entry := range entries {
			stored, err := w.crawlItem(ctx, session, fetcher, community, entry)
			if err != nil {
				return saved, err
			}
			if stored {
				saved++
			}
		}
	}
	return saved, nil
}

func (w *Worker) nextLink(ctx context.Context, session crawler.Session, page crawler.Page) string {
	if href, ok, err := w.deps.Extractor.NextPage(page); err == nil && ok {
		return href
	}
	var href string
	if err := session.Evaluate(ctx, extract.NextLinkScript, &href); err != nil {
		w.logger.Debug("next link script failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(href)
}

func (w *Worker) crawlItem(
	ctx context.Context,
	session crawler.Session,
	fetcher PageFetcher,
	community string,
	entry crawler.ListingEntry,
) (bool, error) {
	itemURL := fmt.Sprintf("%s/comments/%s/", w.cfg.BaseURL, entry.ID)
	page, ok, err := fetcher.Fetch(ctx, itemURL)
	metrics.ObservePage("item", ok)
	if err != nil {
		return false, err
	}
	if !ok {
		if _, urlErr := session.CurrentURL(ctx); errors.Is(urlErr, crawler.ErrSessionLost) {
			return false, urlErr
		}
		w.logger.Debug("item unavailable, skipping", zap.String("item_id", entry.ID))
		return false, nil
	}
	detail, err := w.deps.Extractor.Post(page, entry.ID)
	if err != nil {
		w.logger.Warn("item parse failed", zap.String("item_id", entry.ID), zap.Error(err))
		return false, nil
	}

	created := detail.CreatedAt
	if created == nil {
		created = entry.CreatedAt
	}
	url := entry.Href
	if url == "" {
		url = itemURL
	}
	replies := detail.Replies
	if w.cfg.MaxReplies >= 0 && len(replies) > w.cfg.MaxReplies {
		replies = replies[:w.cfg.MaxReplies]
	}
	var media []crawler.Media
	if w.deps.Media != nil && len(detail.MediaURLs) > 0 {
		media = w.deps.Media.Collect(ctx, entry.ID, detail.MediaURLs)
	}

	bundle := funnel.ItemBundle{
		Community: community,
		Item: crawler.Item{
			ID:         entry.ID,
			URL:        url,
			Title:      detail.Title,
			Author:     detail.Author,
			Score:      detail.Score,
			CreatedAt:  created,
			Body:       detail.Body,
			ReplyCount: detail.ReplyCount,
		},
		Media:   media,
		Replies: replies,
		Snapshot: crawler.ItemSnapshot{
			ItemID:     entry.ID,
			ScanID:     w.cfg.ScanID,
			Score:      detail.Score,
			ReplyCount: detail.ReplyCount,
			CreatedAt:  created,
		},
	}
	if err := w.deps.Sink.Send(ctx, bundle); err != nil {
		return false, fmt.Errorf("%w: %v", errAbort, err)
	}
	metrics.IncItemsSaved(community)

	if err := w.sleep(ctx, w.jitter()); err != nil {
		return true, err
	}
	return true, nil
}

// jitter scales the base delay by a factor in [0.6, 1.4).
func (w *Worker) jitter() time.Duration {
	if w.cfg.Delay <= 0 {
		return 0
	}
	return time.Duration(float64(w.cfg.Delay) * (0.6 + w.rng.Float64()*0.8))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
