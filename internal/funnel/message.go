package funnel

import "github.com/JakeFAU/community-crawler/internal/crawler"

// Message is one unit of work for the funnel. The set of kinds is closed.
type Message interface {
	isMessage()
}

// BeginCommunity registers a community before a worker starts on it, so
// communities without items still receive an id.
type BeginCommunity struct {
	Name string
}

// ItemBundle carries everything recorded for one item in one scan. Reply
// snapshots are derived from Replies using Snapshot.ScanID.
type ItemBundle struct {
	Community string
	Item      crawler.Item
	Media     []crawler.Media
	Replies   []crawler.Reply
	Snapshot  crawler.ItemSnapshot
}

// Shutdown asks the consumer to apply what is already buffered and exit.
type Shutdown struct{}

func (BeginCommunity) isMessage() {}
func (ItemBundle) isMessage()     {}
func (Shutdown) isMessage()       {}
