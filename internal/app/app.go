// Package app initializes and holds long-lived application services, acting as
// a dependency injection container, and supervises complete scans.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/cache"
	"github.com/JakeFAU/community-crawler/internal/clock/system"
	"github.com/JakeFAU/community-crawler/internal/config"
	"github.com/JakeFAU/community-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/community-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/community-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/community-crawler/internal/fetcher/polite"
	"github.com/JakeFAU/community-crawler/internal/headless/detector"
	"github.com/JakeFAU/community-crawler/internal/id/uuid"
	"github.com/JakeFAU/community-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/community-crawler/internal/publisher/memory"
	"github.com/JakeFAU/community-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/community-crawler/internal/storage/postgres"
	"github.com/JakeFAU/community-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/community-crawler/internal/worker"
)

// Storage is a relational backend serving both the crawl writes and the
// metrics queries.
type Storage interface {
	crawler.Store
	crawler.MetricsStore
}

// Services are the collaborators an App drives. Nil optional fields fall back
// to defaults in New.
type Services struct {
	Storage    Storage
	Sessions   crawler.SessionFactory
	Classifier crawler.Classifier
	Media      worker.MediaCollector
	Publisher  crawler.Publisher
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
	// Closers run in reverse order on Close.
	Closers []func() error
}

// App holds the shared, long-lived services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	services Services
	gate     *ratelimit.Gate
}

// New assembles an App from already constructed services. Storage and
// Sessions are required.
func New(cfg config.Config, logger *zap.Logger, svc Services) (*App, error) {
	if svc.Storage == nil {
		return nil, errors.New("app: storage is required")
	}
	if svc.Sessions == nil {
		return nil, errors.New("app: session factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if svc.Clock == nil {
		svc.Clock = system.New()
	}
	if svc.IDs == nil {
		svc.IDs = uuid.New()
	}
	if svc.Classifier == nil {
		svc.Classifier = detector.NewHeuristic(cfg.Polite.TitleMarkers, cfg.Polite.BodyMarkers)
	}
	if svc.Media == nil {
		svc.Media = collyfetcher.New(collyfetcher.Config{Mode: cfg.MediaMode()}, nil, logger.Named("media"))
	}
	if svc.Publisher == nil {
		svc.Publisher = memory.New(logger.Named("publisher"))
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		services: svc,
		gate: ratelimit.NewGate(ratelimit.Config{
			RequestsPerMinute: cfg.Rate.RPM,
			Clock:             svc.Clock,
		}),
	}, nil
}

// NewApp creates the production services described by cfg: the selected
// store, the chromedp session factory, the media fetcher with its optional
// Redis cache, and the Pub/Sub publisher when enabled. It fails fast if any
// of them cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := Services{}
	fail := func(err error) (*App, error) {
		closeAll(logger, svc.Closers)
		return nil, err
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return fail(err)
	}
	svc.Storage = store
	svc.Closers = append(svc.Closers, store.Close)
	logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	var payloads collyfetcher.PayloadCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedis(ctx, cfg.Cache.URL, logger.Named("cache"))
		if err != nil {
			return fail(fmt.Errorf("init media cache: %w", err))
		}
		if redisCache != nil {
			payloads = redisCache
			svc.Closers = append(svc.Closers, redisCache.Close)
		}
	}
	svc.Media = collyfetcher.New(collyfetcher.Config{
		Mode:      cfg.MediaMode(),
		UserAgent: cfg.Media.UserAgent,
		Timeout:   cfg.Media.Timeout,
		MaxBytes:  cfg.Media.MaxBytes,
		CacheTTL:  cfg.Cache.TTL,
	}, payloads, logger.Named("media"))

	svc.Sessions = headless.NewSessionFactory(headless.Config{
		Headless:          cfg.Browser.Headless,
		ExecPath:          cfg.Browser.ExecPath,
		NavigationTimeout: cfg.Browser.NavTimeout,
		Settle:            cfg.Polite.Settle,
	}, logger.Named("browser"))

	if cfg.Publish.Enabled {
		pub, err := pubsub.New(ctx, cfg.Publish.ProjectID)
		if err != nil {
			return fail(fmt.Errorf("init publisher: %w", err))
		}
		svc.Publisher = pub
		svc.Closers = append(svc.Closers, pub.Close)
		logger.Info("publishing scan notifications", zap.String("topic", cfg.Publish.Topic))
	}

	return New(cfg, logger, svc)
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return store, nil
	case "sqlite", "":
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Storage exposes the relational backend.
func (a *App) Storage() Storage {
	return a.services.Storage
}

// Close shuts down all services in reverse order of construction.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	closeAll(a.logger, a.services.Closers)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func closeAll(logger *zap.Logger, closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("error closing service", zap.Error(err))
		}
	}
}

func (a *App) knobs() polite.Knobs {
	p := a.cfg.Polite
	return polite.Knobs{
		MaxAttempts:     p.Attempts,
		InitialBackoff:  p.InitialBackoff,
		MaxBackoff:      p.MaxBackoff,
		OverallDeadline: p.OverallDeadline,
		PenaltyBase:     p.PenaltyBase,
		PenaltyStep:     p.PenaltyStep,
		Verbose:         p.Verbose,
	}
}
