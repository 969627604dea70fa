package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

type itemPairRow struct {
	ItemID         string `db:"post_id"`
	ScanID         int64  `db:"scan_id"`
	Score          *int64 `db:"score"`
	ReplyCount     *int64 `db:"num_comments"`
	CreatedAt      *int64 `db:"created_utc"`
	PrevScanID     *int64 `db:"prev_scan_id"`
	PrevScore      *int64 `db:"prev_score"`
	PrevReplyCount *int64 `db:"prev_num_comments"`
	PrevCreatedAt  *int64 `db:"prev_created_utc"`
}

type replyPairRow struct {
	ReplyID       string `db:"comment_id"`
	ItemID        string `db:"post_id"`
	ScanID        int64  `db:"scan_id"`
	Score         *int64 `db:"score"`
	CreatedAt     *int64 `db:"created_utc"`
	PrevScanID    *int64 `db:"prev_scan_id"`
	PrevScore     *int64 `db:"prev_score"`
	PrevCreatedAt *int64 `db:"prev_created_utc"`
}

const itemPairsQuery = `
SELECT s.post_id, s.scan_id, s.score, s.num_comments, s.created_utc,
       p.scan_id AS prev_scan_id, p.score AS prev_score,
       p.num_comments AS prev_num_comments, p.created_utc AS prev_created_utc
FROM post_snapshots s
LEFT JOIN post_snapshots p
  ON p.post_id = s.post_id
 AND p.scan_id = (SELECT MAX(x.scan_id) FROM post_snapshots x
                  WHERE x.post_id = s.post_id AND x.scan_id < s.scan_id)
WHERE s.scan_id = ?
ORDER BY s.post_id`

const replyPairsQuery = `
SELECT s.comment_id, c.post_id, s.scan_id, s.score, s.created_utc,
       p.scan_id AS prev_scan_id, p.score AS prev_score, p.created_utc AS prev_created_utc
FROM comment_snapshots s
JOIN comments c ON c.id = s.comment_id
LEFT JOIN comment_snapshots p
  ON p.comment_id = s.comment_id
 AND p.scan_id = (SELECT MAX(x.scan_id) FROM comment_snapshots x
                  WHERE x.comment_id = s.comment_id AND x.scan_id < s.scan_id)
WHERE s.scan_id = ?
ORDER BY s.comment_id`

// ItemSnapshotPairs returns every item snapshot of scanID with its latest
// strictly earlier snapshot.
func (s *Store) ItemSnapshotPairs(ctx context.Context, scanID int64) ([]crawler.ItemSnapshotPair, error) {
	var rows []itemPairRow
	if err := s.db.SelectContext(ctx, &rows, itemPairsQuery, scanID); err != nil {
		return nil, fmt.Errorf("select item pairs: %w", err)
	}
	pairs := make([]crawler.ItemSnapshotPair, 0, len(rows))
	for _, r := range rows {
		pair := crawler.ItemSnapshotPair{Current: crawler.ItemSnapshot{
			ItemID: r.ItemID, ScanID: r.ScanID, Score: r.Score, ReplyCount: r.ReplyCount, CreatedAt: r.CreatedAt,
		}}
		if r.PrevScanID != nil {
			pair.Previous = &crawler.ItemSnapshot{
				ItemID: r.ItemID, ScanID: *r.PrevScanID, Score: r.PrevScore, ReplyCount: r.PrevReplyCount, CreatedAt: r.PrevCreatedAt,
			}
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// ReplySnapshotPairs is the reply counterpart of ItemSnapshotPairs. Snapshots
// whose reply row is missing are omitted.
func (s *Store) ReplySnapshotPairs(ctx context.Context, scanID int64) ([]crawler.ReplySnapshotPair, error) {
	var rows []replyPairRow
	if err := s.db.SelectContext(ctx, &rows, replyPairsQuery, scanID); err != nil {
		return nil, fmt.Errorf("select reply pairs: %w", err)
	}
	pairs := make([]crawler.ReplySnapshotPair, 0, len(rows))
	for _, r := range rows {
		pair := crawler.ReplySnapshotPair{
			ItemID:  r.ItemID,
			Current: crawler.ReplySnapshot{ReplyID: r.ReplyID, ScanID: r.ScanID, Score: r.Score, CreatedAt: r.CreatedAt},
		}
		if r.PrevScanID != nil {
			pair.Previous = &crawler.ReplySnapshot{
				ReplyID: r.ReplyID, ScanID: *r.PrevScanID, Score: r.PrevScore, CreatedAt: r.PrevCreatedAt,
			}
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// ReplaceItemMetrics swaps the scan's item metric rows in one transaction.
// Every row is stored under scanID whatever its ScanID field says.
func (s *Store) ReplaceItemMetrics(ctx context.Context, scanID int64, rows []crawler.ItemMetric) error {
	return s.replaceScan(ctx, `DELETE FROM post_metrics WHERE scan_id = ?`, scanID, func(tx *sqlx.Tx) error {
		for _, row := range rows {
			row.ScanID = scanID
			if _, err := tx.NamedExecContext(ctx, `
INSERT INTO post_metrics (post_id, scan_id, score, num_comments, prev_scan_id, prev_score, prev_num_comments,
                          dt_seconds, score_delta, comments_delta, score_vph, comments_vph, virality_score)
VALUES (:post_id, :scan_id, :score, :num_comments, :prev_scan_id, :prev_score, :prev_num_comments,
        :dt_seconds, :score_delta, :comments_delta, :score_vph, :comments_vph, :virality_score)`, row); err != nil {
				return fmt.Errorf("insert item metric %s: %w", row.ItemID, err)
			}
		}
		return nil
	})
}

// ReplaceReplyMetrics swaps the scan's reply metric rows in one transaction.
// Every row is stored under scanID.
func (s *Store) ReplaceReplyMetrics(ctx context.Context, scanID int64, rows []crawler.ReplyMetric) error {
	return s.replaceScan(ctx, `DELETE FROM comment_metrics WHERE scan_id = ?`, scanID, func(tx *sqlx.Tx) error {
		for _, row := range rows {
			row.ScanID = scanID
			if _, err := tx.NamedExecContext(ctx, `
INSERT INTO comment_metrics (comment_id, post_id, scan_id, score, prev_scan_id, prev_score,
                             dt_seconds, score_delta, score_vph)
VALUES (:comment_id, :post_id, :scan_id, :score, :prev_scan_id, :prev_score,
        :dt_seconds, :score_delta, :score_vph)`, row); err != nil {
				return fmt.Errorf("insert reply metric %s: %w", row.ReplyID, err)
			}
		}
		return nil
	})
}

// TopItems lists the scan's item metrics by descending virality.
func (s *Store) TopItems(ctx context.Context, scanID int64, limit int) ([]crawler.ItemMetric, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []crawler.ItemMetric
	err := s.db.SelectContext(ctx, &rows, `
SELECT post_id, scan_id, score, num_comments, prev_scan_id, prev_score, prev_num_comments,
       dt_seconds, score_delta, comments_delta, score_vph, comments_vph, virality_score
FROM post_metrics
WHERE scan_id = ?
ORDER BY virality_score DESC, post_id
LIMIT ?`, scanID, limit)
	if err != nil {
		return nil, fmt.Errorf("select top items: %w", err)
	}
	return rows, nil
}

func (s *Store) replaceScan(ctx context.Context, del string, scanID int64, insert func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, del, scanID); err != nil {
		return fmt.Errorf("delete metrics: %w", err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics: %w", err)
	}
	return nil
}
