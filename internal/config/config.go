// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Rate     RateConfig     `mapstructure:"rate"`
	Polite   PoliteConfig   `mapstructure:"polite"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Media    MediaConfig    `mapstructure:"media"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlConfig governs what is crawled and how workers are laid out.
type CrawlConfig struct {
	Source      string        `mapstructure:"source"`
	ProxiesFile string        `mapstructure:"proxies_file"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxPages    int           `mapstructure:"max_pages"`
	Workers     int           `mapstructure:"workers"`
	Seed        int64         `mapstructure:"seed"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxReplies  int           `mapstructure:"max_replies"`
	MediaMode   string        `mapstructure:"media_mode"`
}

// RateConfig bounds the aggregate request rate.
type RateConfig struct {
	RPM int `mapstructure:"rpm"`
}

// PoliteConfig tunes the per-navigation retry loop.
type PoliteConfig struct {
	Attempts        int           `mapstructure:"attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	OverallDeadline time.Duration `mapstructure:"overall_deadline"`
	PenaltyBase     time.Duration `mapstructure:"penalty_base"`
	PenaltyStep     time.Duration `mapstructure:"penalty_step"`
	Settle          time.Duration `mapstructure:"settle"`
	Verbose         bool          `mapstructure:"verbose"`
	TitleMarkers    []string      `mapstructure:"title_markers"`
	BodyMarkers     []string      `mapstructure:"body_markers"`
}

// BrowserConfig configures the headless browser sessions.
type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"`
	UserDataDir string        `mapstructure:"user_data_dir"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	ExecPath    string        `mapstructure:"exec_path"`
}

// StorageConfig selects and sizes the relational store.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// MediaConfig controls media downloads.
type MediaConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int           `mapstructure:"max_bytes"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CacheConfig enables the shared Redis media cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MetricsConfig covers derived metrics and the Prometheus endpoint.
type MetricsConfig struct {
	EmitFirstSeen bool   `mapstructure:"emit_first_seen"`
	Addr          string `mapstructure:"addr"`
}

// PublishConfig holds Pub/Sub notification settings.
type PublishConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig drives the schedule subcommand.
type ScheduleConfig struct {
	Spec string `mapstructure:"spec"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional .env file, the environment, and an
// optional config file at path.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.source", "subreddits.csv")
	v.SetDefault("crawl.proxies_file", "")
	v.SetDefault("crawl.base_url", "https://old.reddit.com")
	v.SetDefault("crawl.max_pages", 20)
	v.SetDefault("crawl.workers", 2)
	v.SetDefault("crawl.seed", 42)
	v.SetDefault("crawl.delay", "800ms")
	v.SetDefault("crawl.max_replies", 500)
	v.SetDefault("crawl.media_mode", "embed")
	v.SetDefault("rate.rpm", 24)
	v.SetDefault("polite.attempts", 3)
	v.SetDefault("polite.initial_backoff", "800ms")
	v.SetDefault("polite.max_backoff", "5s")
	v.SetDefault("polite.overall_deadline", "15s")
	v.SetDefault("polite.penalty_base", "20s")
	v.SetDefault("polite.penalty_step", "10s")
	v.SetDefault("polite.settle", "300ms")
	v.SetDefault("polite.verbose", false)
	v.SetDefault("polite.title_markers", []string{"429", "too many requests"})
	v.SetDefault("polite.body_markers", []string{"too many requests"})
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./crawler.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("media.timeout", "20s")
	v.SetDefault("media.max_bytes", 10*1024*1024)
	v.SetDefault("media.user_agent", "community-crawler/1.0")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("metrics.emit_first_seen", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "scan-complete")
	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Source == "" {
		return fmt.Errorf("crawl.source is required")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.MaxReplies < 0 {
		return fmt.Errorf("crawl.max_replies must be >= 0")
	}
	if c.Crawl.Delay < 0 {
		return fmt.Errorf("crawl.delay must be >= 0")
	}
	switch c.Crawl.MediaMode {
	case "embed", "base64", "skip", "none":
	default:
		return fmt.Errorf("crawl.media_mode must be embed or skip, got %q", c.Crawl.MediaMode)
	}
	if c.Rate.RPM <= 0 {
		return fmt.Errorf("rate.rpm must be > 0")
	}
	if c.Polite.Attempts <= 0 {
		return fmt.Errorf("polite.attempts must be > 0")
	}
	if c.Polite.InitialBackoff <= 0 || c.Polite.MaxBackoff < c.Polite.InitialBackoff {
		return fmt.Errorf("polite backoff must satisfy 0 < initial_backoff <= max_backoff")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Cache.Enabled && c.Cache.URL == "" {
		return fmt.Errorf("cache.url must be set when cache is enabled")
	}
	if c.Publish.Enabled && (c.Publish.ProjectID == "" || c.Publish.Topic == "") {
		return fmt.Errorf("publish.project_id and publish.topic must be set when publishing is enabled")
	}
	return nil
}

// MediaMode returns the parsed media mode.
func (c Config) MediaMode() crawler.MediaMode {
	return crawler.ParseMediaMode(c.Crawl.MediaMode)
}
