package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/dispatcher"
	"github.com/JakeFAU/community-crawler/internal/funnel"
	"github.com/JakeFAU/community-crawler/internal/logging"
	"github.com/JakeFAU/community-crawler/internal/source"
	"github.com/JakeFAU/community-crawler/internal/telemetry"
	"github.com/JakeFAU/community-crawler/internal/velocity"
	"github.com/JakeFAU/community-crawler/internal/worker"
)

// drainTimeout bounds the funnel drain and metric computation once crawling
// has stopped, including after cancellation.
const drainTimeout = 2 * time.Minute

// Result summarizes one scan. It is also the payload of the completion
// notification.
type Result struct {
	RunID          string    `json:"run_id"`
	ScanID         int64     `json:"scan_id"`
	StartedAt      time.Time `json:"started_at"`
	Communities    int       `json:"communities"`
	Saved          int       `json:"items_saved"`
	Applied        int64     `json:"bundles_applied"`
	Failed         int64     `json:"bundles_failed"`
	ItemMetrics    int       `json:"item_metrics"`
	ReplyMetrics   int       `json:"reply_metrics"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}

// RunScan performs one complete scan: it loads the community and proxy
// lists, opens a scan, crawls with the worker pool, drains the write funnel
// and computes velocity metrics. An empty or unreadable community list is
// fatal. Cancelling ctx stops the workers early; whatever they sent is still
// written and measured.
func (a *App) RunScan(ctx context.Context) (Result, error) {
	communities, err := source.LoadCommunities(a.cfg.Crawl.Source)
	if err != nil {
		return Result{}, fmt.Errorf("load communities: %w", err)
	}
	proxies, err := source.LoadProxies(a.cfg.Crawl.ProxiesFile)
	if err != nil {
		return Result{}, fmt.Errorf("load proxies: %w", err)
	}
	runID, err := a.services.IDs.NewID()
	if err != nil {
		return Result{}, err
	}

	started := a.services.Clock.Now()
	scan, err := a.services.Storage.StartScan(ctx, started)
	if err != nil {
		return Result{}, fmt.Errorf("start scan: %w", err)
	}
	logger := logging.ForScan(a.logger, runID, scan.ID)
	logger.Info("scan started",
		zap.Int("communities", len(communities)),
		zap.Int("workers", a.cfg.Crawl.Workers),
		zap.Int("proxies", len(proxies)),
	)

	ctx, span := telemetry.StartSpan(ctx, "app.scan", attribute.Int64("scan_id", scan.ID))
	defer span.End()

	// Writes outlive cancellation so sent bundles are never lost.
	persistCtx := context.WithoutCancel(ctx)
	sink := funnel.New(a.services.Storage, funnel.Config{
		BaseContext: persistCtx,
		Logger:      logger.Named("funnel"),
	})

	deps := worker.Deps{
		Sessions:   a.services.Sessions,
		Gate:       a.gate,
		Classifier: a.services.Classifier,
		Media:      a.services.Media,
		Sink:       sink,
	}
	pool := dispatcher.New(a.cfg.Crawl.Workers, a.cfg.Crawl.Seed, proxies, func(w int, proxy string) dispatcher.Runner {
		return worker.New(w, deps, worker.Config{
			ScanID:      scan.ID,
			BaseURL:     a.cfg.Crawl.BaseURL,
			MaxPages:    a.cfg.Crawl.MaxPages,
			MaxReplies:  a.cfg.Crawl.MaxReplies,
			Delay:       a.cfg.Crawl.Delay,
			ProfileBase: a.cfg.Browser.UserDataDir,
			Proxy:       proxy,
			Knobs:       a.knobs(),
		}, logger.Named("worker"))
	}, logger.Named("pool"))

	saved := pool.Run(ctx, communities)

	drainCtx, cancel := context.WithTimeout(persistCtx, drainTimeout)
	defer cancel()
	if err := sink.Close(drainCtx); err != nil {
		return Result{}, fmt.Errorf("drain funnel: %w", err)
	}
	stats := sink.Stats()

	computed, err := a.engine(logger).Compute(drainCtx, scan.ID)
	if err != nil {
		return Result{}, fmt.Errorf("compute metrics: %w", err)
	}

	res := Result{
		RunID:          runID,
		ScanID:         scan.ID,
		StartedAt:      started,
		Communities:    len(communities),
		Saved:          saved,
		Applied:        stats.Applied,
		Failed:         stats.Failed,
		ItemMetrics:    computed.Items,
		ReplyMetrics:   computed.Replies,
		ElapsedSeconds: a.services.Clock.Now().Sub(started).Seconds(),
	}
	logger.Info("scan finished",
		zap.Int("saved", res.Saved),
		zap.Int64("failed_bundles", res.Failed),
		zap.Float64("elapsed_seconds", res.ElapsedSeconds),
	)
	a.notify(drainCtx, logger, res)
	return res, nil
}

// notify publishes the summary. Failures are logged, not returned.
func (a *App) notify(ctx context.Context, logger *zap.Logger, res Result) {
	if a.services.Publisher == nil {
		return
	}
	topic := a.cfg.Publish.Topic
	if topic == "" {
		topic = "scan-complete"
	}
	id, err := a.services.Publisher.Publish(ctx, topic, res)
	if err != nil {
		logger.Warn("scan notification failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	logger.Debug("scan notification published", zap.String("topic", topic), zap.String("message_id", id))
}

// RecomputeMetrics rebuilds the derived rows of an existing scan.
func (a *App) RecomputeMetrics(ctx context.Context, scanID int64) (velocity.Result, error) {
	if scanID <= 0 {
		return velocity.Result{}, fmt.Errorf("invalid scan id %d", scanID)
	}
	return a.engine(a.logger.With(zap.Int64("scan_id", scanID))).Compute(ctx, scanID)
}

// TopItems returns the most viral items of a scan.
func (a *App) TopItems(ctx context.Context, scanID int64, limit int) ([]crawler.ItemMetric, error) {
	rows, err := a.services.Storage.TopItems(ctx, scanID, limit)
	if err != nil {
		return nil, fmt.Errorf("top items: %w", err)
	}
	return rows, nil
}

func (a *App) engine(logger *zap.Logger) *velocity.Engine {
	return velocity.NewEngine(a.services.Storage, velocity.Options{
		EmitFirstSeen: a.cfg.Metrics.EmitFirstSeen,
	}, logger.Named("velocity"))
}
