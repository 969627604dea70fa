package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

var (
	_ crawler.Store        = (*Store)(nil)
	_ crawler.MetricsStore = (*Store)(nil)
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewStore(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewStoreWithPool(nil)
	require.Error(t, err)
}

func TestStartScanBumpsTakenSecond(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1_700_000_000, 0)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(id\\), 0\\) FROM scans").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(int64(1_700_000_000)))
	mock.ExpectExec("INSERT INTO scans").
		WithArgs(int64(1_700_000_001), int64(1_700_000_000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	scan, err := store.StartScan(context.Background(), at)
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_001), scan.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCommunityExisting(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id FROM subreddits").
		WithArgs("golang").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))

	id, err := store.EnsureCommunity(context.Background(), "golang")
	require.NoError(t, err)
	require.Equal(t, int64(4), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCommunityAllocates(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id FROM subreddits").
		WithArgs("rust").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(id\\) \\+ 1, 1\\) FROM subreddits").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("INSERT INTO subreddits").
		WithArgs(int64(5), "rust").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, err := store.EnsureCommunity(context.Background(), "rust")
	require.NoError(t, err)
	require.Equal(t, int64(5), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertItemDeletesThenInserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	item := crawler.Item{ID: "abc", CommunityID: 2, URL: "https://old.reddit.com/comments/abc/"}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM posts WHERE id").
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO posts").
		WithArgs("abc", int64(2), item.URL,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertItem(context.Background(), item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM images").
		WithArgs("abc", "https://i.example/a.png").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO images").
		WithArgs("abc", "https://i.example/a.png", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.UpsertMedia(context.Background(), crawler.Media{ItemID: "abc", URL: "https://i.example/a.png"})
	require.ErrorContains(t, err, "boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemSnapshotPairs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"post_id", "scan_id", "score", "num_comments", "created_utc",
		"prev_scan_id", "prev_score", "prev_num_comments", "prev_created_utc"}
	none := (*int64)(nil)
	mock.ExpectQuery("LEFT JOIN LATERAL").
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("a", int64(2), crawler.Int64Ptr(40), crawler.Int64Ptr(3), crawler.Int64Ptr(3700),
				crawler.Int64Ptr(1), crawler.Int64Ptr(10), crawler.Int64Ptr(1), crawler.Int64Ptr(100)).
			AddRow("b", int64(2), crawler.Int64Ptr(5), none, none, none, none, none, none))

	pairs, err := store.ItemSnapshotPairs(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, int64(1), pairs[0].Previous.ScanID)
	require.Equal(t, "a", pairs[0].Previous.ItemID)
	require.Equal(t, int64(10), *pairs[0].Previous.Score)
	require.Nil(t, pairs[1].Previous)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceItemMetricsInOneTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	// A stale ScanID on the row is overridden by the scan being replaced.
	rows := []crawler.ItemMetric{{ItemID: "a", ScanID: 9, Virality: 18}}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM post_metrics").
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO post_metrics").
		WithArgs("a", int64(2),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			18.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.ReplaceItemMetrics(context.Background(), 2, rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceReplyMetricsRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM comment_metrics").
		WithArgs(int64(2)).
		WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err := store.ReplaceReplyMetrics(context.Background(), 2, nil)
	require.ErrorContains(t, err, "locked")
	require.NoError(t, mock.ExpectationsWereMet())
}
