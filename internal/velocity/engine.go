// Package velocity derives per-scan change metrics from snapshot history.
//
// For each snapshot of a scan the engine looks at the latest snapshot of the
// same entity from a strictly earlier scan and computes deltas, per-hour
// velocities and, for items, a composite virality score. Elapsed time is the
// difference of the entities' created timestamps as recorded in the two
// snapshots, not the gap between scan start times.
package velocity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/metrics"
)

// Virality weights.
const (
	ScoreWeight = 0.6
	ReplyWeight = 0.4
)

// Options tune the engine.
type Options struct {
	// EmitFirstSeen writes null-baseline rows for entities with no earlier
	// snapshot instead of skipping them.
	EmitFirstSeen bool
}

// Result counts rows written for one scan.
type Result struct {
	Items   int
	Replies int
}

// Engine computes and stores metrics for completed scans.
type Engine struct {
	store  crawler.MetricsStore
	opts   Options
	logger *zap.Logger
}

// NewEngine builds an Engine over store.
func NewEngine(store crawler.MetricsStore, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, opts: opts, logger: logger}
}

// Compute replaces the metric rows of scanID. Rerunning it for the same scan
// yields the same rows.
func (e *Engine) Compute(ctx context.Context, scanID int64) (Result, error) {
	itemPairs, err := e.store.ItemSnapshotPairs(ctx, scanID)
	if err != nil {
		return Result{}, fmt.Errorf("load item snapshots: %w", err)
	}
	items := make([]crawler.ItemMetric, 0, len(itemPairs))
	for _, pair := range itemPairs {
		if pair.Previous == nil && !e.opts.EmitFirstSeen {
			continue
		}
		items = append(items, ItemMetricFor(pair))
	}
	if err := e.store.ReplaceItemMetrics(ctx, scanID, items); err != nil {
		return Result{}, fmt.Errorf("store item metrics: %w", err)
	}
	metrics.AddMetricRows("item", len(items))

	replyPairs, err := e.store.ReplySnapshotPairs(ctx, scanID)
	if err != nil {
		return Result{}, fmt.Errorf("load reply snapshots: %w", err)
	}
	replies := make([]crawler.ReplyMetric, 0, len(replyPairs))
	for _, pair := range replyPairs {
		if pair.Previous == nil && !e.opts.EmitFirstSeen {
			continue
		}
		replies = append(replies, ReplyMetricFor(pair))
	}
	if err := e.store.ReplaceReplyMetrics(ctx, scanID, replies); err != nil {
		return Result{}, fmt.Errorf("store reply metrics: %w", err)
	}
	metrics.AddMetricRows("reply", len(replies))

	e.logger.Info("metrics computed",
		zap.Int64("scan_id", scanID),
		zap.Int("item_rows", len(items)),
		zap.Int("reply_rows", len(replies)),
		zap.Int("items_first_seen", len(itemPairs)-countWithPrevious(itemPairs)),
	)
	return Result{Items: len(items), Replies: len(replies)}, nil
}

// ItemMetricFor derives the metric row for one pair.
func ItemMetricFor(pair crawler.ItemSnapshotPair) crawler.ItemMetric {
	cur := pair.Current
	m := crawler.ItemMetric{
		ItemID:     cur.ItemID,
		ScanID:     cur.ScanID,
		Score:      cur.Score,
		ReplyCount: cur.ReplyCount,
	}
	if prev := pair.Previous; prev != nil {
		m.PrevScanID = crawler.Int64Ptr(prev.ScanID)
		m.PrevScore = prev.Score
		m.PrevReplyCount = prev.ReplyCount
		m.DTSeconds = diff(cur.CreatedAt, prev.CreatedAt)
		m.ScoreDelta = diff(cur.Score, prev.Score)
		m.ReplyDelta = diff(cur.ReplyCount, prev.ReplyCount)
		m.ScoreVPH = perHour(m.ScoreDelta, m.DTSeconds)
		m.ReplyVPH = perHour(m.ReplyDelta, m.DTSeconds)
	}
	m.Virality = ScoreWeight*orZero(m.ScoreVPH) + ReplyWeight*orZero(m.ReplyVPH)
	return m
}

// ReplyMetricFor derives the metric row for one reply pair.
func ReplyMetricFor(pair crawler.ReplySnapshotPair) crawler.ReplyMetric {
	cur := pair.Current
	m := crawler.ReplyMetric{
		ReplyID: cur.ReplyID,
		ItemID:  pair.ItemID,
		ScanID:  cur.ScanID,
		Score:   cur.Score,
	}
	if prev := pair.Previous; prev != nil {
		m.PrevScanID = crawler.Int64Ptr(prev.ScanID)
		m.PrevScore = prev.Score
		m.DTSeconds = diff(cur.CreatedAt, prev.CreatedAt)
		m.ScoreDelta = diff(cur.Score, prev.Score)
		m.ScoreVPH = perHour(m.ScoreDelta, m.DTSeconds)
	}
	return m
}

func diff(cur, prev *int64) *int64 {
	if cur == nil || prev == nil {
		return nil
	}
	return crawler.Int64Ptr(*cur - *prev)
}

// perHour is nil unless both inputs are known and dt is positive.
func perHour(delta, dt *int64) *float64 {
	if delta == nil || dt == nil || *dt <= 0 {
		return nil
	}
	v := float64(*delta) * 3600.0 / float64(*dt)
	return &v
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func countWithPrevious(pairs []crawler.ItemSnapshotPair) int {
	n := 0
	for _, p := range pairs {
		if p.Previous != nil {
			n++
		}
	}
	return n
}
