// Package crawler defines the entities, write messages and capability
// interfaces shared by the community crawl pipeline: the browser session,
// the rate-limit classifier, the persistence store and the clock.
package crawler
