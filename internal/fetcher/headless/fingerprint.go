package headless

import "math/rand"

var userAgents = []string{
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
}

var languages = []string{"en-US,en;q=0.9", "en-GB,en;q=0.8", "en-CA,en;q=0.8"}

var windowSizes = [][2]int{{1366, 768}, {1400, 900}, {1600, 900}, {1680, 1050}}

// Fingerprint is the browser identity presented by one worker.
type Fingerprint struct {
	UserAgent string
	Language  string
	Width     int
	Height    int
}

// FingerprintFor picks a stable identity for a worker index so repeated runs
// present the same browser per worker.
func FingerprintFor(worker int) Fingerprint {
	rng := rand.New(rand.NewSource(int64(1000 + worker))) //nolint:gosec // identity selection, not security
	size := windowSizes[rng.Intn(len(windowSizes))]
	return Fingerprint{
		UserAgent: userAgents[rng.Intn(len(userAgents))],
		Language:  languages[rng.Intn(len(languages))],
		Width:     size[0],
		Height:    size[1],
	}
}
