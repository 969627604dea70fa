package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/app"
	"github.com/JakeFAU/community-crawler/internal/config"
	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/logging"
	"github.com/JakeFAU/community-crawler/internal/telemetry"
	"github.com/JakeFAU/community-crawler/internal/velocity"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// This allows a fake app to be injected during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	RunScan(ctx context.Context) (app.Result, error)
	RecomputeMetrics(ctx context.Context, scanID int64) (velocity.Result, error)
	TopItems(ctx context.Context, scanID int64, limit int) ([]crawler.ItemMetric, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	tp, err := telemetry.InitTracerProvider(ctx, logging.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return &tracedApp{App: a, shutdown: tp.Shutdown}, nil
}

// tracedApp flushes the tracer provider after the services close.
type tracedApp struct {
	*app.App
	shutdown func(context.Context) error
}

func (t *tracedApp) Close() {
	t.App.Close()
	if err := t.shutdown(context.Background()); err != nil {
		t.Logger().Debug("tracer shutdown failed", zap.Error(err))
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "community-crawler",
		Short: "Crawls community listings and measures how fast items gain traction.",
		Long: `community-crawler scans a list of communities with a pool of isolated browser
sessions, stores every item, reply and media asset it sees, and derives
per-hour engagement velocity between consecutive scans.`,
		SilenceUsage: true,

		// Build and inject the application before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newMetricsCmd())
	cmd.AddCommand(newTopCmd())
	cmd.AddCommand(newScheduleCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
