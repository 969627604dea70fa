package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, crawlerPagesTotal)
	require.NotNil(t, crawlerWritesTotal)
	require.NotNil(t, crawlerRateLimitDelaysSeconds)
}

func TestObservePageLabelsOutcome(t *testing.T) {
	before := testutil.ToFloat64(pagesCounter(t, "listing", "failed"))
	ObservePage("listing", false)
	ObservePage("listing", true)

	require.Equal(t, before+1, testutil.ToFloat64(pagesCounter(t, "listing", "failed")))
}

func TestWriteAndWorkerHelpers(t *testing.T) {
	Init()
	applied := testutil.ToFloat64(crawlerWritesTotal.WithLabelValues("applied"))
	ObserveWrite(true)
	require.Equal(t, applied+1, testutil.ToFloat64(crawlerWritesTotal.WithLabelValues("applied")))

	active := testutil.ToFloat64(crawlerActiveWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	require.Equal(t, active+1, testutil.ToFloat64(crawlerActiveWorkers))

	rows := testutil.ToFloat64(crawlerMetricRowsTotal.WithLabelValues("item"))
	AddMetricRows("item", 3)
	require.Equal(t, rows+3, testutil.ToFloat64(crawlerMetricRowsTotal.WithLabelValues("item")))

	ObserveRateLimitDelay(250 * time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(crawlerRateLimitDelaysSeconds))
}

func pagesCounter(t *testing.T, kind, outcome string) prometheus.Counter {
	t.Helper()
	Init()
	return crawlerPagesTotal.WithLabelValues(kind, outcome)
}
