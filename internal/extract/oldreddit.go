// Package extract turns rendered old.reddit pages into typed listing and post
// records using goquery selectors.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

// NextLinkSelector locates the pagination link on listing pages.
const NextLinkSelector = "span.next-button > a"

// NextLinkScript resolves the pagination link inside the browser. It is the
// fallback when the captured markup cannot be parsed.
const NextLinkScript = `(document.querySelector('span.next-button > a')||{}).href || ""`

var (
	digitsPattern = regexp.MustCompile(`\d[\d,]*`)
	imagePattern  = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif)$`)
	emojiPattern  = regexp.MustCompile(`(?i)emoji`)
)

// OldReddit extracts records from old.reddit.com markup.
type OldReddit struct{}

// Listing returns the items on a community listing page in page order.
func (OldReddit) Listing(page crawler.Page) ([]crawler.ListingEntry, error) {
	doc, err := parse(page)
	if err != nil {
		return nil, err
	}
	var entries []crawler.ListingEntry
	doc.Find("div#siteTable div.thing.link").Each(func(_ int, sel *goquery.Selection) {
		id, ok := strings.CutPrefix(sel.AttrOr("data-fullname", ""), "t3_")
		if !ok || id == "" {
			return
		}
		entry := crawler.ListingEntry{ID: id}
		if href, exists := sel.Find("a.comments").First().Attr("href"); exists {
			entry.Href = resolve(page.URL, href)
		}
		if ms, err := strconv.ParseInt(sel.AttrOr("data-timestamp", ""), 10, 64); err == nil && ms > 0 {
			entry.CreatedAt = crawler.Int64Ptr(ms / 1000)
		}
		entries = append(entries, entry)
	})
	return entries, nil
}

// Post returns the fields, media URLs and replies on an item detail page.
// Replies come back in document order with ItemID set to itemID.
func (OldReddit) Post(page crawler.Page, itemID string) (crawler.PostDetail, error) {
	doc, err := parse(page)
	if err != nil {
		return crawler.PostDetail{}, err
	}
	var detail crawler.PostDetail
	main := doc.Find("div#siteTable div.thing.link").First()
	if main.Length() > 0 {
		detail.Title = text(main.Find("a.title").First())
		detail.Author = text(main.Find("a.author").First())
		score := main.Find("div.score").First()
		detail.Score = digits(score.AttrOr("title", score.Text()))
		detail.CreatedAt = timestamp(main.Find("time").First())
		if comments := text(main.Find("a.comments").First()); comments != nil {
			detail.ReplyCount = digits(*comments)
		}
		detail.Body = text(main.Find("div.expando div.usertext div.usertext-body").First())
		detail.MediaURLs = mediaURLs(doc, main)
	}

	doc.Find("div.sitetable.nestedlisting div.thing.comment").Each(func(_ int, sel *goquery.Selection) {
		id, ok := strings.CutPrefix(sel.AttrOr("data-fullname", ""), "t1_")
		if !ok || id == "" {
			return
		}
		scoreText := text(sel.Find("span.score.unvoted").First())
		if scoreText == nil {
			scoreText = text(sel.Find("span.score").First())
		}
		reply := crawler.Reply{
			ID:        id,
			ItemID:    itemID,
			ParentRef: crawler.StringPtr(sel.AttrOr("data-parent", "")),
			Author:    text(sel.Find("a.author").First()),
			Body:      text(sel.Find("div.entry div.usertext-body").First()),
			CreatedAt: timestamp(sel.Find("time").First()),
		}
		if scoreText != nil {
			reply.Score = digits(*scoreText)
		}
		detail.Replies = append(detail.Replies, reply)
	})
	return detail, nil
}

// NextPage returns the absolute URL of the next listing page, if any.
func (OldReddit) NextPage(page crawler.Page) (string, bool, error) {
	doc, err := parse(page)
	if err != nil {
		return "", false, err
	}
	href, ok := doc.Find(NextLinkSelector).Last().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false, nil
	}
	return resolve(page.URL, href), true, nil
}

func mediaURLs(doc *goquery.Document, main *goquery.Selection) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(u string) {
		if u == "" || strings.HasPrefix(u, "data:") {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, selector := range []string{"div.expando img", "a.thumbnail img", `div.expando a[rel="nofollow"] img`} {
		main.Find(selector).Each(func(_ int, img *goquery.Selection) {
			add(img.AttrOr("src", ""))
		})
	}
	main.Find("div.expando a").Each(func(_ int, a *goquery.Selection) {
		if href := a.AttrOr("href", ""); imagePattern.MatchString(href) {
			add(href)
		}
	})
	if len(out) == 0 {
		doc.Find("div.content img").Each(func(_ int, img *goquery.Selection) {
			if src := img.AttrOr("src", ""); !emojiPattern.MatchString(src) {
				add(src)
			}
		})
	}
	return out
}

func parse(page crawler.Page) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page.URL, err)
	}
	return doc, nil
}

func text(sel *goquery.Selection) *string {
	if sel.Length() == 0 {
		return nil
	}
	return crawler.StringPtr(strings.TrimSpace(sel.Text()))
}

func digits(s string) *int64 {
	match := digitsPattern.FindString(s)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(match, ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func timestamp(sel *goquery.Selection) *int64 {
	raw, ok := sel.Attr("datetime")
	if !ok {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return crawler.Int64Ptr(ts.Unix())
}

func resolve(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || ref.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return href
	}
	return b.ResolveReference(ref).String()
}
