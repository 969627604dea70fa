package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/app"
	"github.com/JakeFAU/community-crawler/internal/config"
	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/velocity"
)

type fakeApp struct {
	cfg       config.Config
	scanErr   error
	scans     atomic.Int64
	recompute []int64
	topScan   int64
	topLimit  int
	closed    bool
}

func (f *fakeApp) Close()                { f.closed = true }
func (f *fakeApp) Logger() *zap.Logger   { return zap.NewNop() }
func (f *fakeApp) Config() config.Config { return f.cfg }

func (f *fakeApp) RunScan(context.Context) (app.Result, error) {
	f.scans.Add(1)
	if f.scanErr != nil {
		return app.Result{}, f.scanErr
	}
	return app.Result{ScanID: 77, Saved: 3, Communities: 2}, nil
}

func (f *fakeApp) RecomputeMetrics(_ context.Context, scanID int64) (velocity.Result, error) {
	f.recompute = append(f.recompute, scanID)
	return velocity.Result{Items: 4, Replies: 9}, nil
}

func (f *fakeApp) TopItems(_ context.Context, scanID int64, limit int) ([]crawler.ItemMetric, error) {
	f.topScan, f.topLimit = scanID, limit
	vph := 30.0
	return []crawler.ItemMetric{
		{ItemID: "abc", Score: crawler.Int64Ptr(40), ScoreVPH: &vph, Virality: 18},
		{ItemID: "def", Virality: 0},
	}, nil
}

// withFakeApp swaps the factory. Tests using it must not run in parallel.
func withFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandRunsOneScan(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	out, err := execute(t, "crawl")
	require.NoError(t, err)
	require.Equal(t, int64(1), fake.scans.Load())
	require.Contains(t, out, "scan 77: saved 3 items from 2 communities")
	require.True(t, fake.closed)
}

func TestCrawlCommandPropagatesScanError(t *testing.T) {
	fake := &fakeApp{scanErr: errors.New("no communities")}
	withFakeApp(t, fake)

	_, err := execute(t, "crawl")
	require.ErrorContains(t, err, "no communities")
}

func TestMetricsCommand(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	out, err := execute(t, "metrics", "--scan", "12")
	require.NoError(t, err)
	require.Equal(t, []int64{12}, fake.recompute)
	require.Contains(t, out, "4 item rows, 9 reply rows")

	_, err = execute(t, "metrics")
	require.ErrorContains(t, err, "--scan is required")
}

func TestTopCommand(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	out, err := execute(t, "top", "--scan", "5", "--limit", "2")
	require.NoError(t, err)
	require.Equal(t, int64(5), fake.topScan)
	require.Equal(t, 2, fake.topLimit)
	require.Contains(t, out, "VIRALITY")
	require.Contains(t, out, "abc")
	require.Contains(t, out, "18.00")
	require.Contains(t, out, "30.00")
}

func TestScheduleCommandRejectsBadSpec(t *testing.T) {
	fake := &fakeApp{cfg: config.Config{Schedule: config.ScheduleConfig{Spec: "not a spec"}}}
	withFakeApp(t, fake)

	_, err := execute(t, "schedule")
	require.ErrorContains(t, err, "parse schedule")
	require.Zero(t, fake.scans.Load())
}

func TestScheduleCommandRunsNowAndStopsOnCancel(t *testing.T) {
	fake := &fakeApp{cfg: config.Config{Schedule: config.ScheduleConfig{Spec: "@every 1h"}}}
	withFakeApp(t, fake)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"schedule", "--now"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return fake.scans.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRootFailsWhenAppCannotStart(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("bad config") }
	t.Cleanup(func() { newApp = orig })

	_, err := execute(t, "crawl")
	require.ErrorContains(t, err, "bad config")
}

func TestServeOpsDisabledWithoutAddr(t *testing.T) {
	stop := serveOps(context.Background(), &fakeApp{})
	stop()
}

func TestServeOpsStopsServer(t *testing.T) {
	fake := &fakeApp{cfg: config.Config{Metrics: config.MetricsConfig{Addr: "127.0.0.1:0"}}}
	stop := serveOps(context.Background(), fake)
	stop()
}
