// Package dispatcher partitions communities across workers and runs them
// concurrently.
package dispatcher

import (
	"context"
	"math/rand"
	"sync"

	"go.uber.org/zap"
)

// DefaultSeed keeps partitions reproducible between runs.
const DefaultSeed = 42

// Runner crawls one slice of communities and reports items saved.
type Runner interface {
	Run(ctx context.Context, communities []string) int
}

// Builder creates the runner for worker index w with its assigned proxy
// (empty when no proxies are configured).
type Builder func(w int, proxy string) Runner

// Pool fans a community list out to a fixed number of workers.
type Pool struct {
	workers int
	seed    int64
	proxies []string
	build   Builder
	logger  *zap.Logger
}

// New creates a Pool. workers below one is treated as one.
func New(workers int, seed int64, proxies []string, build Builder, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		workers: workers,
		seed:    seed,
		proxies: append([]string(nil), proxies...),
		build:   build,
		logger:  logger,
	}
}

// Run launches one goroutine per non-empty slice and blocks until all finish.
// It returns the summed item counts. A worker that stops early does not affect
// the others.
func (p *Pool) Run(ctx context.Context, communities []string) int {
	slices := Partition(communities, p.workers, p.seed)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for w, slice := range slices {
		if len(slice) == 0 {
			continue
		}
		runner := p.build(w, ProxyFor(p.proxies, w))
		wg.Add(1)
		go func(w int, slice []string) {
			defer wg.Done()
			n := runner.Run(ctx, slice)
			p.logger.Info("worker finished", zap.Int("worker", w), zap.Int("communities", len(slice)), zap.Int("saved", n))
			mu.Lock()
			total += n
			mu.Unlock()
		}(w, slice)
	}
	wg.Wait()
	return total
}

// Partition shuffles list with seed and splits it into n contiguous slices of
// ceil(len/n) elements. Trailing slices may be empty. list is not modified.
func Partition(list []string, n int, seed int64) [][]string {
	if n < 1 {
		n = 1
	}
	shuffled := append([]string(nil), list...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	per := (len(shuffled) + n - 1) / n
	out := make([][]string, n)
	for w := 0; w < n; w++ {
		start := w * per
		if start >= len(shuffled) {
			continue
		}
		end := min(start+per, len(shuffled))
		out[w] = shuffled[start:end]
	}
	return out
}

// ProxyFor assigns proxies round-robin by worker index.
func ProxyFor(proxies []string, w int) string {
	if len(proxies) == 0 {
		return ""
	}
	return proxies[w%len(proxies)]
}
