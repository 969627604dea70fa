package crawler

// Community is a named content channel whose items are crawled.
// IDs are allocated sequentially by the store on first sighting.
type Community struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Item is a single crawled post. Optional fields are nil when the page did
// not expose them.
type Item struct {
	ID          string  `db:"id"`
	CommunityID int64   `db:"subreddit_id"`
	URL         string  `db:"url"`
	Title       *string `db:"title"`
	Author      *string `db:"author"`
	Score       *int64  `db:"score"`
	CreatedAt   *int64  `db:"created_utc"`
	Body        *string `db:"selftext"`
	ReplyCount  *int64  `db:"num_comments"`
}

// Reply is a threaded response attached to an Item.
type Reply struct {
	ID        string  `db:"id"`
	ItemID    string  `db:"post_id"`
	ParentRef *string `db:"parent_fullname"`
	Author    *string `db:"author"`
	Body      *string `db:"body"`
	Score     *int64  `db:"score"`
	CreatedAt *int64  `db:"created_utc"`
}

// Media is an asset referenced by an Item, keyed by (ItemID, URL).
// Data holds the base64 payload when media embedding is enabled.
type Media struct {
	ItemID    string  `db:"post_id"`
	URL       string  `db:"url"`
	Data      *string `db:"data_base64"`
	MIME      *string `db:"mime"`
	SizeBytes *int64  `db:"size_bytes"`
}

// Scan identifies one complete crawl run.
type Scan struct {
	ID        int64 `db:"id"`
	StartedAt int64 `db:"scanned_at"`
}

// ItemSnapshot is the point-in-time engagement of an Item within one scan.
type ItemSnapshot struct {
	ItemID     string `db:"post_id"`
	ScanID     int64  `db:"scan_id"`
	Score      *int64 `db:"score"`
	ReplyCount *int64 `db:"num_comments"`
	CreatedAt  *int64 `db:"created_utc"`
}

// ReplySnapshot is the point-in-time score of a Reply within one scan.
type ReplySnapshot struct {
	ReplyID   string `db:"comment_id"`
	ScanID    int64  `db:"scan_id"`
	Score     *int64 `db:"score"`
	CreatedAt *int64 `db:"created_utc"`
}

// ItemSnapshotPair couples a current-scan snapshot with the latest snapshot
// of the same item from a strictly earlier scan. Previous is nil for items
// seen for the first time.
type ItemSnapshotPair struct {
	Current  ItemSnapshot
	Previous *ItemSnapshot
}

// ReplySnapshotPair is the reply counterpart of ItemSnapshotPair. ItemID is
// resolved from the replies table.
type ReplySnapshotPair struct {
	ItemID   string
	Current  ReplySnapshot
	Previous *ReplySnapshot
}

// ItemMetric is the derived change of an item between two scans.
type ItemMetric struct {
	ItemID         string   `db:"post_id"`
	ScanID         int64    `db:"scan_id"`
	Score          *int64   `db:"score"`
	ReplyCount     *int64   `db:"num_comments"`
	PrevScanID     *int64   `db:"prev_scan_id"`
	PrevScore      *int64   `db:"prev_score"`
	PrevReplyCount *int64   `db:"prev_num_comments"`
	DTSeconds      *int64   `db:"dt_seconds"`
	ScoreDelta     *int64   `db:"score_delta"`
	ReplyDelta     *int64   `db:"comments_delta"`
	ScoreVPH       *float64 `db:"score_vph"`
	ReplyVPH       *float64 `db:"comments_vph"`
	Virality       float64  `db:"virality_score"`
}

// ReplyMetric is the derived change of a reply between two scans.
type ReplyMetric struct {
	ReplyID    string   `db:"comment_id"`
	ItemID     string   `db:"post_id"`
	ScanID     int64    `db:"scan_id"`
	Score      *int64   `db:"score"`
	PrevScanID *int64   `db:"prev_scan_id"`
	PrevScore  *int64   `db:"prev_score"`
	DTSeconds  *int64   `db:"dt_seconds"`
	ScoreDelta *int64   `db:"score_delta"`
	ScoreVPH   *float64 `db:"score_vph"`
}

// ListingEntry is one item discovered on a community listing page.
type ListingEntry struct {
	ID        string
	Href      string
	CreatedAt *int64
}

// PostDetail is the structured content of an item detail page.
type PostDetail struct {
	Title      *string
	Author     *string
	Score      *int64
	CreatedAt  *int64
	Body       *string
	ReplyCount *int64
	MediaURLs  []string
	Replies    []Reply
}

// Page is the rendered result of one navigation.
type Page struct {
	URL   string
	Title string
	HTML  string
}

// MediaMode selects whether media payloads are downloaded and embedded.
type MediaMode string

// Media modes accepted by configuration.
const (
	MediaEmbed MediaMode = "embed"
	MediaSkip  MediaMode = "skip"
)

// ParseMediaMode normalizes configuration aliases. Unknown values fall back
// to MediaSkip.
func ParseMediaMode(raw string) MediaMode {
	switch raw {
	case "embed", "base64":
		return MediaEmbed
	default:
		return MediaSkip
	}
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
