package sqlite

// schema mirrors the flat table-per-entity layout. Identity is enforced by
// delete-then-insert rather than constraints so rows may arrive in any order.
const schema = `
CREATE TABLE IF NOT EXISTS subreddits (
	id   INTEGER,
	name TEXT
);

CREATE TABLE IF NOT EXISTS posts (
	id           TEXT,
	subreddit_id INTEGER,
	url          TEXT,
	title        TEXT,
	author       TEXT,
	score        INTEGER,
	created_utc  INTEGER,
	selftext     TEXT,
	num_comments INTEGER
);

CREATE TABLE IF NOT EXISTS comments (
	id              TEXT,
	post_id         TEXT,
	parent_fullname TEXT,
	author          TEXT,
	body            TEXT,
	score           INTEGER,
	created_utc     INTEGER
);

CREATE TABLE IF NOT EXISTS images (
	post_id     TEXT,
	url         TEXT,
	data_base64 TEXT,
	mime        TEXT,
	size_bytes  INTEGER
);

CREATE TABLE IF NOT EXISTS scans (
	id         INTEGER,
	scanned_at INTEGER
);

CREATE TABLE IF NOT EXISTS post_snapshots (
	post_id      TEXT,
	scan_id      INTEGER,
	score        INTEGER,
	num_comments INTEGER,
	created_utc  INTEGER
);

CREATE TABLE IF NOT EXISTS comment_snapshots (
	comment_id  TEXT,
	scan_id     INTEGER,
	score       INTEGER,
	created_utc INTEGER
);

CREATE TABLE IF NOT EXISTS post_metrics (
	post_id           TEXT,
	scan_id           INTEGER,
	score             INTEGER,
	num_comments      INTEGER,
	prev_scan_id      INTEGER,
	prev_score        INTEGER,
	prev_num_comments INTEGER,
	dt_seconds        INTEGER,
	score_delta       INTEGER,
	comments_delta    INTEGER,
	score_vph         REAL,
	comments_vph      REAL,
	virality_score    REAL
);

CREATE TABLE IF NOT EXISTS comment_metrics (
	comment_id   TEXT,
	post_id      TEXT,
	scan_id      INTEGER,
	score        INTEGER,
	prev_scan_id INTEGER,
	prev_score   INTEGER,
	dt_seconds   INTEGER,
	score_delta  INTEGER,
	score_vph    REAL
);

CREATE INDEX IF NOT EXISTS idx_subs_name ON subreddits(name);
CREATE INDEX IF NOT EXISTS idx_posts_id ON posts(id);
CREATE INDEX IF NOT EXISTS idx_comments_id ON comments(id);
CREATE INDEX IF NOT EXISTS idx_images_post_url ON images(post_id, url);
CREATE INDEX IF NOT EXISTS idx_scans_id ON scans(id);
CREATE INDEX IF NOT EXISTS idx_ps_post_scan ON post_snapshots(post_id, scan_id);
CREATE INDEX IF NOT EXISTS idx_cs_comment_scan ON comment_snapshots(comment_id, scan_id);
CREATE INDEX IF NOT EXISTS idx_pm_scan ON post_metrics(scan_id);
CREATE INDEX IF NOT EXISTS idx_cm_scan ON comment_metrics(scan_id);
`
