// Package headless drives Chrome through chromedp. Each worker owns one
// Session backed by its own browser process, profile and proxy.
package headless

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

// Config controls the browser sessions opened by a SessionFactory.
type Config struct {
	Headless          bool
	ExecPath          string
	NavigationTimeout time.Duration
	// Settle is the pause between document ready and reading the DOM.
	Settle time.Duration
}

const (
	defaultNavTimeout = 45 * time.Second
	defaultSettle     = 300 * time.Millisecond
	probeTimeout      = 5 * time.Second
)

// SessionFactory launches one browser per Open call.
type SessionFactory struct {
	cfg    Config
	logger *zap.Logger
}

var _ crawler.SessionFactory = (*SessionFactory)(nil)

// NewSessionFactory creates a SessionFactory.
func NewSessionFactory(cfg Config, logger *zap.Logger) *SessionFactory {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	} else if cfg.Settle == 0 {
		cfg.Settle = defaultSettle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionFactory{cfg: cfg, logger: logger}
}

// Open starts a browser for the worker described by opts. The browser lives
// until the returned session is closed or ctx ends.
func (f *SessionFactory) Open(ctx context.Context, opts crawler.SessionOptions) (crawler.Session, error) {
	if opts.ProfileDir != "" {
		if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
	}
	fp := FingerprintFor(opts.Worker)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocatorOptions(opts, fp)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	warmup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		override := emulation.SetUserAgentOverride(fp.UserAgent).WithAcceptLanguage(fp.Language)
		if err := override.Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
	if err := chromedp.Run(browserCtx, warmup); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	f.logger.Debug("browser session opened",
		zap.Int("worker", opts.Worker),
		zap.String("user_agent", fp.UserAgent),
		zap.Bool("proxy", opts.Proxy != ""),
	)
	return &Session{
		cfg:           f.cfg,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

func (f *SessionFactory) allocatorOptions(opts crawler.SessionOptions, fp Fingerprint) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range browserFlags(f.cfg, opts, fp) {
		out = append(out, chromedp.Flag(name, value))
	}
	if f.cfg.ExecPath != "" {
		out = append(out, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return out
}

func browserFlags(cfg Config, opts crawler.SessionOptions, fp Fingerprint) map[string]any {
	flags := map[string]any{
		"disable-gpu":              true,
		"no-sandbox":               true,
		"disable-dev-shm-usage":    true,
		"disable-blink-features":   "AutomationControlled",
		"enable-automation":        false,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"user-agent":               fp.UserAgent,
		"lang":                     fp.Language,
		"window-size":              fmt.Sprintf("%d,%d", fp.Width, fp.Height),
		"headless":                 false,
	}
	if cfg.Headless {
		flags["headless"] = "new"
	}
	if opts.ProfileDir != "" {
		flags["user-data-dir"] = opts.ProfileDir
	}
	if opts.Proxy != "" {
		flags["proxy-server"] = opts.Proxy
	}
	return flags
}

// Session is a single browser tab. It is not safe for concurrent use; each
// worker owns exactly one.
type Session struct {
	cfg           Config
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
}

var _ crawler.Session = (*Session)(nil)

// Navigate loads url, waits for the body plus the settle delay and captures
// the title and outer HTML.
func (s *Session) Navigate(ctx context.Context, url string) (crawler.Page, error) {
	var page crawler.Page
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Settle),
		chromedp.Title(&page.Title),
		chromedp.Location(&page.URL),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	return page, nil
}

// CurrentURL probes the tab. It doubles as the liveness check after a
// failed fetch.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, probeTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("current url: %w", err)
	}
	return location, nil
}

// Evaluate runs script in the page and decodes its result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Close shuts the tab and the browser process. It is safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
	return nil
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.browserCtx.Err() != nil {
		return fmt.Errorf("%w: %v", crawler.ErrSessionLost, s.browserCtx.Err())
	}
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(taskCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("chromedp run: %w", ctx.Err())
	}
	if isSessionLost(err, s.browserCtx.Err() == nil) {
		return fmt.Errorf("%w: %v", crawler.ErrSessionLost, err)
	}
	return fmt.Errorf("chromedp run: %w", err)
}

var sessionLostMarkers = []string{
	"invalid session id",
	"session deleted",
	"not connected to devtools",
	"target closed",
	"websocket: close",
	"browser has disconnected",
}

// isSessionLost maps transport failures to the fatal session signal. The
// phrase list covers errors surfaced as plain text by the devtools socket.
func isSessionLost(err error, browserAlive bool) bool {
	if err == nil {
		return false
	}
	if !browserAlive {
		return true
	}
	if errors.Is(err, chromedp.ErrInvalidContext) || errors.Is(err, chromedp.ErrChannelClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sessionLostMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
