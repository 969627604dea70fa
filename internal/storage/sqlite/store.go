// Package sqlite implements crawler.Store and crawler.MetricsStore on an
// embedded SQLite database using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

// Store is a SQLite-backed store. Path ":memory:" opens a private in-memory
// database, which is useful in tests.
type Store struct {
	db *sqlx.DB
}

// Open connects to path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.path is required")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes file writes.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// StartScan records a new scan. Its id is startedAt in unix seconds, bumped
// past the current maximum when a scan already holds that second.
func (s *Store) StartScan(ctx context.Context, startedAt time.Time) (crawler.Scan, error) {
	scan := crawler.Scan{ID: startedAt.Unix(), StartedAt: startedAt.Unix()}
	var maxID int64
	if err := s.db.GetContext(ctx, &maxID, `SELECT COALESCE(MAX(id), 0) FROM scans`); err != nil {
		return crawler.Scan{}, fmt.Errorf("read max scan id: %w", err)
	}
	if maxID >= scan.ID {
		scan.ID = maxID + 1
	}
	if _, err := s.db.NamedExecContext(ctx, `INSERT INTO scans (id, scanned_at) VALUES (:id, :scanned_at)`, scan); err != nil {
		return crawler.Scan{}, fmt.Errorf("insert scan: %w", err)
	}
	return scan, nil
}

// EnsureCommunity returns the id for name, allocating MAX(id)+1 on first use.
func (s *Store) EnsureCommunity(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `SELECT id FROM subreddits WHERE name = ? LIMIT 1`, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup community: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := tx.GetContext(ctx, &id, `SELECT COALESCE(MAX(id) + 1, 1) FROM subreddits`); err != nil {
		return 0, fmt.Errorf("allocate community id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO subreddits (id, name) VALUES (?, ?)`, id, name); err != nil {
		return 0, fmt.Errorf("insert community: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit community: %w", err)
	}
	return id, nil
}

// UpsertItem replaces the current row for item.ID.
func (s *Store) UpsertItem(ctx context.Context, item crawler.Item) error {
	return s.replace(ctx,
		`DELETE FROM posts WHERE id = ?`, []any{item.ID},
		`INSERT INTO posts (id, subreddit_id, url, title, author, score, created_utc, selftext, num_comments)
		 VALUES (:id, :subreddit_id, :url, :title, :author, :score, :created_utc, :selftext, :num_comments)`, item)
}

// UpsertMedia replaces the row keyed by (ItemID, URL).
func (s *Store) UpsertMedia(ctx context.Context, media crawler.Media) error {
	return s.replace(ctx,
		`DELETE FROM images WHERE post_id = ? AND url = ?`, []any{media.ItemID, media.URL},
		`INSERT INTO images (post_id, url, data_base64, mime, size_bytes)
		 VALUES (:post_id, :url, :data_base64, :mime, :size_bytes)`, media)
}

// UpsertReply replaces the current row for reply.ID.
func (s *Store) UpsertReply(ctx context.Context, reply crawler.Reply) error {
	return s.replace(ctx,
		`DELETE FROM comments WHERE id = ?`, []any{reply.ID},
		`INSERT INTO comments (id, post_id, parent_fullname, author, body, score, created_utc)
		 VALUES (:id, :post_id, :parent_fullname, :author, :body, :score, :created_utc)`, reply)
}

// PutItemSnapshot replaces the snapshot keyed by (ItemID, ScanID).
func (s *Store) PutItemSnapshot(ctx context.Context, snap crawler.ItemSnapshot) error {
	return s.replace(ctx,
		`DELETE FROM post_snapshots WHERE post_id = ? AND scan_id = ?`, []any{snap.ItemID, snap.ScanID},
		`INSERT INTO post_snapshots (post_id, scan_id, score, num_comments, created_utc)
		 VALUES (:post_id, :scan_id, :score, :num_comments, :created_utc)`, snap)
}

// PutReplySnapshot replaces the snapshot keyed by (ReplyID, ScanID).
func (s *Store) PutReplySnapshot(ctx context.Context, snap crawler.ReplySnapshot) error {
	return s.replace(ctx,
		`DELETE FROM comment_snapshots WHERE comment_id = ? AND scan_id = ?`, []any{snap.ReplyID, snap.ScanID},
		`INSERT INTO comment_snapshots (comment_id, scan_id, score, created_utc)
		 VALUES (:comment_id, :scan_id, :score, :created_utc)`, snap)
}

func (s *Store) replace(ctx context.Context, del string, delArgs []any, ins string, row any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, ins, row); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
