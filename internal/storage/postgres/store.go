// Package postgres provides a Postgres-backed crawler.Store and
// crawler.MetricsStore for shared deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store writes crawl records into Postgres.
type Store struct {
	pool Pool
}

// NewStore connects using cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// StartScan inserts a scan whose id is startedAt in unix seconds, or the next
// free id when that second is taken.
func (s *Store) StartScan(ctx context.Context, startedAt time.Time) (crawler.Scan, error) {
	scan := crawler.Scan{ID: startedAt.Unix(), StartedAt: startedAt.Unix()}
	var maxID int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM scans`).Scan(&maxID); err != nil {
		return crawler.Scan{}, fmt.Errorf("read max scan id: %w", err)
	}
	if maxID >= scan.ID {
		scan.ID = maxID + 1
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO scans (id, scanned_at) VALUES ($1, $2)`, scan.ID, scan.StartedAt); err != nil {
		return crawler.Scan{}, fmt.Errorf("insert scan: %w", err)
	}
	return scan, nil
}

// EnsureCommunity returns the id for name, allocating MAX(id)+1 on first use.
func (s *Store) EnsureCommunity(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM subreddits WHERE name = $1 LIMIT 1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup community: %w", err)
	}
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(id) + 1, 1) FROM subreddits`).Scan(&id); err != nil {
			return fmt.Errorf("allocate community id: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO subreddits (id, name) VALUES ($1, $2)`, id, name); err != nil {
			return fmt.Errorf("insert community: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpsertItem replaces the current row for item.ID.
func (s *Store) UpsertItem(ctx context.Context, item crawler.Item) error {
	return s.replace(ctx, `DELETE FROM posts WHERE id = $1`, []any{item.ID},
		`INSERT INTO posts (id, subreddit_id, url, title, author, score, created_utc, selftext, num_comments)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.CommunityID, item.URL, item.Title, item.Author, item.Score, item.CreatedAt, item.Body, item.ReplyCount)
}

// UpsertMedia replaces the row keyed by (ItemID, URL).
func (s *Store) UpsertMedia(ctx context.Context, media crawler.Media) error {
	return s.replace(ctx, `DELETE FROM images WHERE post_id = $1 AND url = $2`, []any{media.ItemID, media.URL},
		`INSERT INTO images (post_id, url, data_base64, mime, size_bytes) VALUES ($1, $2, $3, $4, $5)`,
		media.ItemID, media.URL, media.Data, media.MIME, media.SizeBytes)
}

// UpsertReply replaces the current row for reply.ID.
func (s *Store) UpsertReply(ctx context.Context, reply crawler.Reply) error {
	return s.replace(ctx, `DELETE FROM comments WHERE id = $1`, []any{reply.ID},
		`INSERT INTO comments (id, post_id, parent_fullname, author, body, score, created_utc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reply.ID, reply.ItemID, reply.ParentRef, reply.Author, reply.Body, reply.Score, reply.CreatedAt)
}

// PutItemSnapshot replaces the snapshot keyed by (ItemID, ScanID).
func (s *Store) PutItemSnapshot(ctx context.Context, snap crawler.ItemSnapshot) error {
	return s.replace(ctx, `DELETE FROM post_snapshots WHERE post_id = $1 AND scan_id = $2`, []any{snap.ItemID, snap.ScanID},
		`INSERT INTO post_snapshots (post_id, scan_id, score, num_comments, created_utc) VALUES ($1, $2, $3, $4, $5)`,
		snap.ItemID, snap.ScanID, snap.Score, snap.ReplyCount, snap.CreatedAt)
}

// PutReplySnapshot replaces the snapshot keyed by (ReplyID, ScanID).
func (s *Store) PutReplySnapshot(ctx context.Context, snap crawler.ReplySnapshot) error {
	return s.replace(ctx, `DELETE FROM comment_snapshots WHERE comment_id = $1 AND scan_id = $2`, []any{snap.ReplyID, snap.ScanID},
		`INSERT INTO comment_snapshots (comment_id, scan_id, score, created_utc) VALUES ($1, $2, $3, $4)`,
		snap.ReplyID, snap.ScanID, snap.Score, snap.CreatedAt)
}

func (s *Store) replace(ctx context.Context, del string, delArgs []any, ins string, insArgs ...any) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, del, delArgs...); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if _, err := tx.Exec(ctx, ins, insArgs...); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
