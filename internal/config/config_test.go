package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/community-crawler/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 20, cfg.Crawl.MaxPages)
	require.Equal(t, 2, cfg.Crawl.Workers)
	require.Equal(t, int64(42), cfg.Crawl.Seed)
	require.Equal(t, 800*time.Millisecond, cfg.Crawl.Delay)
	require.Equal(t, 500, cfg.Crawl.MaxReplies)
	require.Equal(t, crawler.MediaEmbed, cfg.MediaMode())
	require.Equal(t, 24, cfg.Rate.RPM)
	require.Equal(t, 3, cfg.Polite.Attempts)
	require.Equal(t, 5*time.Second, cfg.Polite.MaxBackoff)
	require.Equal(t, 300*time.Millisecond, cfg.Polite.Settle)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "./crawler.db", cfg.Storage.Path)
	require.False(t, cfg.Metrics.EmitFirstSeen)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawl:
  source: communities.txt
  max_pages: 3
  workers: 4
  seed: 7
  delay: 2s
  max_replies: 50
  media_mode: skip
rate:
  rpm: 60
polite:
  attempts: 5
  initial_backoff: 100ms
  max_backoff: 1s
  verbose: true
storage:
  driver: postgres
  dsn: postgres://localhost/crawler
cache:
  enabled: true
  url: redis://cache:6379/1
metrics:
  emit_first_seen: true
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "communities.txt", cfg.Crawl.Source)
	require.Equal(t, 4, cfg.Crawl.Workers)
	require.Equal(t, int64(7), cfg.Crawl.Seed)
	require.Equal(t, 2*time.Second, cfg.Crawl.Delay)
	require.Equal(t, crawler.MediaSkip, cfg.MediaMode())
	require.Equal(t, 60, cfg.Rate.RPM)
	require.Equal(t, 100*time.Millisecond, cfg.Polite.InitialBackoff)
	require.True(t, cfg.Polite.Verbose)
	require.Equal(t, "postgres", cfg.Storage.Driver)
	require.True(t, cfg.Cache.Enabled)
	require.True(t, cfg.Metrics.EmitFirstSeen)
	require.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRAWLER_CRAWL_WORKERS", "6")
	t.Setenv("CRAWLER_RATE_RPM", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 6, cfg.Crawl.Workers)
	require.Equal(t, 12, cfg.Rate.RPM)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no source", func(c *Config) { c.Crawl.Source = "" }},
		{"zero workers", func(c *Config) { c.Crawl.Workers = 0 }},
		{"zero pages", func(c *Config) { c.Crawl.MaxPages = 0 }},
		{"bad media", func(c *Config) { c.Crawl.MediaMode = "inline" }},
		{"zero rpm", func(c *Config) { c.Rate.RPM = 0 }},
		{"inverted backoff", func(c *Config) { c.Polite.MaxBackoff = time.Millisecond }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "duckdb" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"cache without url", func(c *Config) { c.Cache.Enabled = true; c.Cache.URL = "" }},
		{"publish without project", func(c *Config) { c.Publish.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
