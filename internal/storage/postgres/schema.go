package postgres

// Schema is applied by EnsureSchema. Tables carry no keys; identity is kept by
// delete-then-insert.
const Schema = `
CREATE TABLE IF NOT EXISTS subreddits (id BIGINT, name TEXT);
CREATE TABLE IF NOT EXISTS posts (
	id TEXT, subreddit_id BIGINT, url TEXT, title TEXT, author TEXT,
	score BIGINT, created_utc BIGINT, selftext TEXT, num_comments BIGINT
);
CREATE TABLE IF NOT EXISTS comments (
	id TEXT, post_id TEXT, parent_fullname TEXT, author TEXT, body TEXT,
	score BIGINT, created_utc BIGINT
);
CREATE TABLE IF NOT EXISTS images (
	post_id TEXT, url TEXT, data_base64 TEXT, mime TEXT, size_bytes BIGINT
);
CREATE TABLE IF NOT EXISTS scans (id BIGINT, scanned_at BIGINT);
CREATE TABLE IF NOT EXISTS post_snapshots (
	post_id TEXT, scan_id BIGINT, score BIGINT, num_comments BIGINT, created_utc BIGINT
);
CREATE TABLE IF NOT EXISTS comment_snapshots (
	comment_id TEXT, scan_id BIGINT, score BIGINT, created_utc BIGINT
);
CREATE TABLE IF NOT EXISTS post_metrics (
	post_id TEXT, scan_id BIGINT, score BIGINT, num_comments BIGINT,
	prev_scan_id BIGINT, prev_score BIGINT, prev_num_comments BIGINT,
	dt_seconds BIGINT, score_delta BIGINT, comments_delta BIGINT,
	score_vph DOUBLE PRECISION, comments_vph DOUBLE PRECISION, virality_score DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS comment_metrics (
	comment_id TEXT, post_id TEXT, scan_id BIGINT, score BIGINT,
	prev_scan_id BIGINT, prev_score BIGINT, dt_seconds BIGINT,
	score_delta BIGINT, score_vph DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_subs_name ON subreddits(name);
CREATE INDEX IF NOT EXISTS idx_posts_id ON posts(id);
CREATE INDEX IF NOT EXISTS idx_comments_id ON comments(id);
CREATE INDEX IF NOT EXISTS idx_ps_post_scan ON post_snapshots(post_id, scan_id);
CREATE INDEX IF NOT EXISTS idx_cs_comment_scan ON comment_snapshots(comment_id, scan_id);
CREATE INDEX IF NOT EXISTS idx_pm_scan ON post_metrics(scan_id);
CREATE INDEX IF NOT EXISTS idx_cm_scan ON comment_metrics(scan_id);
`
