package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

const listingHTML = `<html><body>
<div id="siteTable">
  <div class="thing link" data-fullname="t3_abc123" data-timestamp="1700000000000">
    <a class="title" href="https://example.com">First</a>
    <a class="comments" href="https://old.reddit.com/r/golang/comments/abc123/first/">12 comments</a>
  </div>
  <div class="thing link promoted" data-fullname="">
    <a class="comments" href="/ad">ad</a>
  </div>
  <div class="thing link" data-fullname="t3_def456">
    <a class="comments" href="/r/golang/comments/def456/second/">3 comments</a>
  </div>
</div>
<span class="next-button"><a href="https://old.reddit.com/r/golang/top/?t=day&count=25&after=t3_def456">next</a></span>
</body></html>`

const postHTML = `<html><body>
<div class="content">
<div id="siteTable">
  <div class="thing link" data-fullname="t3_abc123">
    <div class="score unvoted" title="1,234">1.2k</div>
    <a class="title">Generics in practice</a>
    <a class="author">gopher</a>
    <time datetime="2023-11-14T22:13:20+00:00">1 day ago</time>
    <a class="comments">56 comments</a>
    <div class="expando">
      <div class="usertext"><div class="usertext-body"> body text </div></div>
      <img src="https://i.redd.it/one.png">
      <img src="data:image/gif;base64,AAAA">
      <a href="https://i.imgur.com/two.JPG">link</a>
      <a href="https://i.redd.it/one.png">dup</a>
    </div>
  </div>
</div>
<div class="sitetable nestedlisting">
  <div class="thing comment" data-fullname="t1_c1" data-parent="t3_abc123">
    <div class="entry">
      <a class="author">alice</a>
      <span class="score unvoted">17 points</span>
      <time datetime="2023-11-14T23:00:00+00:00">x</time>
      <div class="usertext-body">first reply</div>
    </div>
    <div class="child">
      <div class="thing comment" data-fullname="t1_c2">
        <div class="entry">
          <a class="author">bob</a>
          <span class="score">2 points</span>
          <div class="usertext-body">nested</div>
        </div>
      </div>
    </div>
  </div>
  <div class="thing comment" data-fullname="deleted"></div>
</div>
</div>
</body></html>`

func TestListing(t *testing.T) {
	t.Parallel()

	entries, err := OldReddit{}.Listing(crawler.Page{
		URL:  "https://old.reddit.com/r/golang/top/?t=day",
		HTML: listingHTML,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, "abc123", entries[0].ID)
	require.Equal(t, "https://old.reddit.com/r/golang/comments/abc123/first/", entries[0].Href)
	require.NotNil(t, entries[0].CreatedAt)
	require.Equal(t, int64(1700000000), *entries[0].CreatedAt)

	require.Equal(t, "def456", entries[1].ID)
	require.Equal(t, "https://old.reddit.com/r/golang/comments/def456/second/", entries[1].Href)
	require.Nil(t, entries[1].CreatedAt)
}

func TestNextPage(t *testing.T) {
	t.Parallel()

	next, ok, err := OldReddit{}.NextPage(crawler.Page{HTML: listingHTML})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://old.reddit.com/r/golang/top/?t=day&count=25&after=t3_def456", next)

	_, ok, err = OldReddit{}.NextPage(crawler.Page{HTML: "<html><body></body></html>"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPost(t *testing.T) {
	t.Parallel()

	detail, err := OldReddit{}.Post(crawler.Page{
		URL:  "https://old.reddit.com/comments/abc123/",
		HTML: postHTML,
	}, "abc123")
	require.NoError(t, err)

	require.Equal(t, "Generics in practice", *detail.Title)
	require.Equal(t, "gopher", *detail.Author)
	require.Equal(t, int64(1234), *detail.Score)
	require.Equal(t, int64(1700000000), *detail.CreatedAt)
	require.Equal(t, int64(56), *detail.ReplyCount)
	require.Equal(t, "body text", *detail.Body)
	require.Equal(t, []string{"https://i.redd.it/one.png", "https://i.imgur.com/two.JPG"}, detail.MediaURLs)

	require.Len(t, detail.Replies, 2)
	first := detail.Replies[0]
	require.Equal(t, "c1", first.ID)
	require.Equal(t, "abc123", first.ItemID)
	require.Equal(t, "t3_abc123", *first.ParentRef)
	require.Equal(t, "alice", *first.Author)
	require.Equal(t, int64(17), *first.Score)
	require.Equal(t, "first reply", *first.Body)
	require.NotNil(t, first.CreatedAt)

	second := detail.Replies[1]
	require.Equal(t, "c2", second.ID)
	require.Nil(t, second.ParentRef)
	require.Equal(t, int64(2), *second.Score)
	require.Nil(t, second.CreatedAt)
}

func TestPostWithoutMainThing(t *testing.T) {
	t.Parallel()

	detail, err := OldReddit{}.Post(crawler.Page{HTML: "<html><body><p>nothing</p></body></html>"}, "x")
	require.NoError(t, err)
	require.Nil(t, detail.Title)
	require.Empty(t, detail.MediaURLs)
	require.Empty(t, detail.Replies)
}
