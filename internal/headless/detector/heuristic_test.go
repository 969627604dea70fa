package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

func TestHeuristic_IsRateLimited(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(nil, nil)
	tests := []struct {
		name string
		page crawler.Page
		want bool
	}{
		{"status code in title", crawler.Page{Title: "Error 429"}, true},
		{"mixed case body", crawler.Page{HTML: "<h1>Too Many Requests</h1>"}, true},
		{"title phrase", crawler.Page{Title: "TOO MANY REQUESTS"}, true},
		{"normal listing", crawler.Page{Title: "top scoring links : golang", HTML: "<div id=siteTable>"}, false},
		{"empty page", crawler.Page{}, false},
		// 429 alone in the body is not a signal; post ids and scores contain digits.
		{"digits in body only", crawler.Page{Title: "ok", HTML: "score 1429"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, h.IsRateLimited(tt.page))
		})
	}
}

func TestHeuristic_CustomMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic([]string{"Slow Down"}, []string{" rate limited "})
	require.True(t, h.IsRateLimited(crawler.Page{Title: "please slow down"}))
	require.True(t, h.IsRateLimited(crawler.Page{HTML: "you are RATE LIMITED"}))
	require.False(t, h.IsRateLimited(crawler.Page{Title: "429"}))
}

func TestClassifierFuncAdapter(t *testing.T) {
	t.Parallel()

	var c crawler.Classifier = crawler.ClassifierFunc(func(p crawler.Page) bool {
		return p.Title == "blocked"
	})
	require.True(t, c.IsRateLimited(crawler.Page{Title: "blocked"}))
	require.False(t, c.IsRateLimited(crawler.Page{Title: "fine"}))
}
