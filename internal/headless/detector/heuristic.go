// Package detector classifies rendered pages as rate-limit responses.
package detector

import (
	"strings"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

// Default markers matched against the lower-cased title and markup.
var (
	DefaultTitleMarkers = []string{"429", "too many requests"}
	DefaultBodyMarkers  = []string{"too many requests"}
)

// Heuristic flags a page when its title or markup contains a known
// rate-limit phrase. Matching is case-insensitive.
type Heuristic struct {
	TitleMarkers []string
	BodyMarkers  []string
}

var _ crawler.Classifier = (*Heuristic)(nil)

// NewHeuristic creates a detector. Empty marker lists fall back to the
// defaults.
func NewHeuristic(titleMarkers, bodyMarkers []string) *Heuristic {
	if len(titleMarkers) == 0 {
		titleMarkers = DefaultTitleMarkers
	}
	if len(bodyMarkers) == 0 {
		bodyMarkers = DefaultBodyMarkers
	}
	return &Heuristic{
		TitleMarkers: lowerAll(titleMarkers),
		BodyMarkers:  lowerAll(bodyMarkers),
	}
}

// IsRateLimited reports whether page looks like a throttling response.
func (h *Heuristic) IsRateLimited(page crawler.Page) bool {
	if containsAny(strings.ToLower(page.Title), h.TitleMarkers) {
		return true
	}
	return containsAny(strings.ToLower(page.HTML), h.BodyMarkers)
}

func containsAny(haystack string, markers []string) bool {
	if haystack == "" {
		return false
	}
	for _, marker := range markers {
		if marker != "" && strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
