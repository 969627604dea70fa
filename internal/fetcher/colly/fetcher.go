// Package collyfetcher downloads media referenced by crawled items using
// gocolly and turns the payloads into storable Media rows.
package collyfetcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/metrics"
)

// ErrCacheMiss is returned by a PayloadCache when the key is absent.
var ErrCacheMiss = errors.New("media cache miss")

// PayloadCache stores encoded media payloads across workers and runs.
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config controls collector behavior.
type Config struct {
	Mode      crawler.MediaMode
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int
	CacheTTL  time.Duration
}

// Fetcher resolves media URLs into Media rows. It is safe for concurrent use;
// every download runs on a cloned collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	cache         PayloadCache
	logger        *zap.Logger
}

type payload struct {
	Data string `json:"data"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// New builds a Fetcher. cache may be nil.
func New(cfg Config, cache PayloadCache, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if cfg.MaxBytes > 0 {
		c.MaxBodySize = cfg.MaxBytes
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		cache:         cache,
		logger:        logger,
	}
}

// Collect returns one Media row per URL in order. In skip mode no request is
// made. A failed or non-2xx download yields a row with a nil payload.
func (f *Fetcher) Collect(ctx context.Context, itemID string, urls []string) []crawler.Media {
	out := make([]crawler.Media, 0, len(urls))
	for _, u := range urls {
		row := crawler.Media{ItemID: itemID, URL: u}
		if f.cfg.Mode == crawler.MediaEmbed {
			if p, ok := f.lookup(ctx, u); ok {
				row.Data = &p.Data
				row.MIME = crawler.StringPtr(p.MIME)
				row.SizeBytes = crawler.Int64Ptr(p.Size)
			}
		}
		out = append(out, row)
	}
	return out
}

func (f *Fetcher) lookup(ctx context.Context, url string) (payload, bool) {
	key := "media:" + url
	if f.cache != nil {
		raw, err := f.cache.Get(ctx, key)
		switch {
		case err == nil:
			var p payload
			if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
				metrics.ObserveMediaFetch("cached")
				return p, true
			}
		case !errors.Is(err, ErrCacheMiss):
			f.logger.Debug("media cache read failed", zap.String("url", url), zap.Error(err))
		}
	}

	p, ok, err := f.download(ctx, url)
	if err != nil {
		f.logger.Debug("media download failed", zap.String("url", url), zap.Error(err))
	}
	if !ok {
		metrics.ObserveMediaFetch("missing")
		return payload{}, false
	}
	metrics.ObserveMediaFetch("embedded")
	if f.cache != nil {
		if raw, err := json.Marshal(p); err == nil {
			if err := f.cache.Set(ctx, key, raw, f.cfg.CacheTTL); err != nil {
				f.logger.Debug("media cache write failed", zap.String("url", url), zap.Error(err))
			}
		}
	}
	return p, true
}

func (f *Fetcher) download(ctx context.Context, url string) (payload, bool, error) {
	var (
		result   payload
		ok       bool
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			return
		}
		result = payload{
			Data: base64.StdEncoding.EncodeToString(r.Body),
			MIME: r.Headers.Get("Content-Type"),
			Size: int64(len(r.Body)),
		}
		ok = true
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return payload{}, false, fmt.Errorf("media fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return payload{}, false, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return payload{}, false, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return result, ok, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
