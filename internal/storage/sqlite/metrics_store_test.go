package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

func TestItemSnapshotPairsPicksLatestPrior(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	for _, snap := range []crawler.ItemSnapshot{
		{ItemID: "a", ScanID: 1, Score: crawler.Int64Ptr(1), CreatedAt: crawler.Int64Ptr(100)},
		{ItemID: "a", ScanID: 2, Score: crawler.Int64Ptr(2), CreatedAt: crawler.Int64Ptr(200)},
		{ItemID: "a", ScanID: 3, Score: crawler.Int64Ptr(3), CreatedAt: crawler.Int64Ptr(300)},
		{ItemID: "b", ScanID: 3, Score: crawler.Int64Ptr(9)},
	} {
		require.NoError(t, s.PutItemSnapshot(ctx, snap))
	}

	pairs, err := s.ItemSnapshotPairs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	require.Equal(t, "a", pairs[0].Current.ItemID)
	require.Equal(t, int64(3), *pairs[0].Current.Score)
	require.NotNil(t, pairs[0].Previous)
	require.Equal(t, int64(2), pairs[0].Previous.ScanID)
	require.Equal(t, int64(200), *pairs[0].Previous.CreatedAt)

	require.Equal(t, "b", pairs[1].Current.ItemID)
	require.Nil(t, pairs[1].Previous)
}

func TestReplySnapshotPairsJoinsOwningItem(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertReply(ctx, crawler.Reply{ID: "c1", ItemID: "a"}))
	require.NoError(t, s.PutReplySnapshot(ctx, crawler.ReplySnapshot{ReplyID: "c1", ScanID: 1, Score: crawler.Int64Ptr(1)}))
	require.NoError(t, s.PutReplySnapshot(ctx, crawler.ReplySnapshot{ReplyID: "c1", ScanID: 2, Score: crawler.Int64Ptr(4)}))
	require.NoError(t, s.PutReplySnapshot(ctx, crawler.ReplySnapshot{ReplyID: "orphan", ScanID: 2}))

	pairs, err := s.ReplySnapshotPairs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.Equal(t, "a", pairs[0].ItemID)
	require.Equal(t, int64(1), pairs[0].Previous.ScanID)
	require.Equal(t, int64(1), *pairs[0].Previous.Score)
}

func TestReplaceItemMetricsIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	vph := 30.0
	rows := []crawler.ItemMetric{
		{ItemID: "a", ScanID: 2, Score: crawler.Int64Ptr(40), ScoreVPH: &vph, Virality: 18},
		{ItemID: "b", ScanID: 2, Score: crawler.Int64Ptr(5), Virality: 2},
	}
	require.NoError(t, s.ReplaceItemMetrics(ctx, 2, rows))
	require.NoError(t, s.ReplaceItemMetrics(ctx, 2, rows))
	require.NoError(t, s.ReplaceItemMetrics(ctx, 3, rows[:1]))
	require.NoError(t, s.ReplaceItemMetrics(ctx, 3, rows[:1]))

	require.Equal(t, 2, count(t, s, `SELECT COUNT(*) FROM post_metrics WHERE scan_id = 2`))
	require.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM post_metrics WHERE scan_id = 3`))

	top, err := s.TopItems(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, "a", top[0].ItemID)
	require.InDelta(t, 18.0, top[0].Virality, 1e-9)
	require.InDelta(t, 30.0, *top[0].ScoreVPH, 1e-9)
	require.Nil(t, top[0].ReplyVPH)
}

func TestReplaceReplyMetricsIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	rows := []crawler.ReplyMetric{{ReplyID: "c1", ItemID: "a", ScanID: 2, Score: crawler.Int64Ptr(3)}}
	require.NoError(t, s.ReplaceReplyMetrics(ctx, 2, rows))
	require.NoError(t, s.ReplaceReplyMetrics(ctx, 2, rows))
	require.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM comment_metrics WHERE scan_id = 2`))

	require.NoError(t, s.ReplaceReplyMetrics(ctx, 2, nil))
	require.Equal(t, 0, count(t, s, `SELECT COUNT(*) FROM comment_metrics`))
}
