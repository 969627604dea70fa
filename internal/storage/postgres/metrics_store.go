package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

const itemPairsQuery = `
SELECT s.post_id, s.scan_id, s.score, s.num_comments, s.created_utc,
       p.scan_id, p.score, p.num_comments, p.created_utc
FROM post_snapshots s
LEFT JOIN LATERAL (
	SELECT * FROM post_snapshots ps
	WHERE ps.post_id = s.post_id AND ps.scan_id < s.scan_id
	ORDER BY ps.scan_id DESC LIMIT 1
) p ON true
WHERE s.scan_id = $1
ORDER BY s.post_id`

const replyPairsQuery = `
SELECT s.comment_id, c.post_id, s.scan_id, s.score, s.created_utc,
       p.scan_id, p.score, p.created_utc
FROM comment_snapshots s
JOIN comments c ON c.id = s.comment_id
LEFT JOIN LATERAL (
	SELECT * FROM comment_snapshots cs
	WHERE cs.comment_id = s.comment_id AND cs.scan_id < s.scan_id
	ORDER BY cs.scan_id DESC LIMIT 1
) p ON true
WHERE s.scan_id = $1
ORDER BY s.comment_id`

// ItemSnapshotPairs returns every item snapshot of scanID with its latest
// strictly earlier snapshot.
func (s *Store) ItemSnapshotPairs(ctx context.Context, scanID int64) ([]crawler.ItemSnapshotPair, error) {
	rows, err := s.pool.Query(ctx, itemPairsQuery, scanID)
	if err != nil {
		return nil, fmt.Errorf("query item pairs: %w", err)
	}
	defer rows.Close()

	var pairs []crawler.ItemSnapshotPair
	for rows.Next() {
		var (
			cur      crawler.ItemSnapshot
			prevScan *int64
			prev     crawler.ItemSnapshot
		)
		if err := rows.Scan(&cur.ItemID, &cur.ScanID, &cur.Score, &cur.ReplyCount, &cur.CreatedAt,
			&prevScan, &prev.Score, &prev.ReplyCount, &prev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item pair: %w", err)
		}
		pair := crawler.ItemSnapshotPair{Current: cur}
		if prevScan != nil {
			prev.ItemID = cur.ItemID
			prev.ScanID = *prevScan
			pair.Previous = &prev
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item pairs: %w", err)
	}
	return pairs, nil
}

// ReplySnapshotPairs is the reply counterpart of ItemSnapshotPairs.
func (s *Store) ReplySnapshotPairs(ctx context.Context, scanID int64) ([]crawler.ReplySnapshotPair, error) {
	rows, err := s.pool.Query(ctx, replyPairsQuery, scanID)
	if err != nil {
		return nil, fmt.Errorf("query reply pairs: %w", err)
	}
	defer rows.Close()

	var pairs []crawler.ReplySnapshotPair
	for rows.Next() {
		var (
			pair     crawler.ReplySnapshotPair
			prevScan *int64
			prev     crawler.ReplySnapshot
		)
		if err := rows.Scan(&pair.Current.ReplyID, &pair.ItemID, &pair.Current.ScanID, &pair.Current.Score,
			&pair.Current.CreatedAt, &prevScan, &prev.Score, &prev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply pair: %w", err)
		}
		if prevScan != nil {
			prev.ReplyID = pair.Current.ReplyID
			prev.ScanID = *prevScan
			pair.Previous = &prev
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reply pairs: %w", err)
	}
	return pairs, nil
}

// ReplaceItemMetrics swaps the scan's item metric rows in one transaction.
func (s *Store) ReplaceItemMetrics(ctx context.Context, scanID int64, rows []crawler.ItemMetric) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM post_metrics WHERE scan_id = $1`, scanID); err != nil {
			return fmt.Errorf("delete item metrics: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
INSERT INTO post_metrics (post_id, scan_id, score, num_comments, prev_scan_id, prev_score, prev_num_comments,
                          dt_seconds, score_delta, comments_delta, score_vph, comments_vph, virality_score)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				r.ItemID, scanID, r.Score, r.ReplyCount, r.PrevScanID, r.PrevScore, r.PrevReplyCount,
				r.DTSeconds, r.ScoreDelta, r.ReplyDelta, r.ScoreVPH, r.ReplyVPH, r.Virality); err != nil {
				return fmt.Errorf("insert item metric %s: %w", r.ItemID, err)
			}
		}
		return nil
	})
}

// ReplaceReplyMetrics swaps the scan's reply metric rows in one transaction.
// Every row is stored under scanID.
func (s *Store) ReplaceReplyMetrics(ctx context.Context, scanID int64, rows []crawler.ReplyMetric) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM comment_metrics WHERE scan_id = $1`, scanID); err != nil {
			return fmt.Errorf("delete reply metrics: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
INSERT INTO comment_metrics (comment_id, post_id, scan_id, score, prev_scan_id, prev_score,
                             dt_seconds, score_delta, score_vph)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				r.ReplyID, r.ItemID, scanID, r.Score, r.PrevScanID, r.PrevScore,
				r.DTSeconds, r.ScoreDelta, r.ScoreVPH); err != nil {
				return fmt.Errorf("insert reply metric %s: %w", r.ReplyID, err)
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
	rows, err := s.pool.Query(ctx, `
SELECT post_id, scan_id, score, num_comments, prev_scan_id, prev_score, prev_num_comments,
       dt_seconds, score_delta, comments_delta, score_vph, comments_vph, virality_score
FROM post_metrics
WHERE scan_id = $1
ORDER BY virality_score DESC, post_id
LIMIT $2`, scanID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top items: %w", err)
	}
	defer rows.Close()

	var out []crawler.ItemMetric
	for rows.Next() {
		var m crawler.ItemMetric
		if err := rows.Scan(&m.ItemID, &m.ScanID, &m.Score, &m.ReplyCount, &m.PrevScanID, &m.PrevScore,
			&m.PrevReplyCount, &m.DTSeconds, &m.ScoreDelta, &m.ReplyDelta, &m.ScoreVPH, &m.ReplyVPH, &m.Virality); err != nil {
			return nil, fmt.Errorf("scan top item: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top items: %w", err)
	}
	return out, nil
}
