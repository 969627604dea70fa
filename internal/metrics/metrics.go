// Package metrics exposes Prometheus collectors for the community crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerRateLimitedTotal       prometheus.Counter
	crawlerCooldownExtensions     prometheus.Counter
	crawlerRateLimitDelaysSeconds prometheus.Histogram
	crawlerItemsSavedTotal        *prometheus.CounterVec
	crawlerWritesTotal            *prometheus.CounterVec
	crawlerActiveWorkers          prometheus.Gauge
	crawlerMediaFetchesTotal      *prometheus.CounterVec
	crawlerMetricRowsTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of polite navigations, labeled by page kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		crawlerRateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_rate_limited_total",
				Help: "Total number of pages classified as rate-limit responses.",
			},
		)

		crawlerCooldownExtensions = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_cooldown_extensions_total",
				Help: "Total number of times the shared cooldown deadline moved later.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of time spent waiting on the shared rate gate.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		crawlerItemsSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_saved_total",
				Help: "Total number of items emitted to the write funnel, labeled by community.",
			},
			[]string{"community"},
		)

		crawlerWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_writes_total",
				Help: "Total number of write messages applied by the funnel, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently holding a browser session.",
			},
		)

		crawlerMediaFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_media_fetches_total",
				Help: "Total number of media lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerMetricRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_metric_rows_total",
				Help: "Total number of derived metric rows written, labeled by entity.",
			},
			[]string{"entity"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records the outcome of one polite navigation.
func ObservePage(kind string, loaded bool) {
	Init()
	outcome := "failed"
	if loaded {
		outcome = "loaded"
	}
	crawlerPagesTotal.WithLabelValues(kind, outcome).Inc()
}

// IncRateLimited counts a rate-limit classification.
func IncRateLimited() {
	Init()
	crawlerRateLimitedTotal.Inc()
}

// IncCooldownExtension counts a cooldown deadline that moved later.
func IncCooldownExtension() {
	Init()
	crawlerCooldownExtensions.Inc()
}

// ObserveRateLimitDelay records the duration of a rate gate wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.Observe(duration.Seconds())
}

// IncItemsSaved counts an item emitted to the write funnel.
func IncItemsSaved(community string) {
	Init()
	crawlerItemsSavedTotal.WithLabelValues(community).Inc()
}

// ObserveWrite records the outcome of one applied write message.
func ObserveWrite(ok bool) {
	Init()
	outcome := "failed"
	if ok {
		outcome = "applied"
	}
	crawlerWritesTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveMediaFetch records a media lookup outcome ("embedded", "missing", "cached").
func ObserveMediaFetch(outcome string) {
	Init()
	crawlerMediaFetchesTotal.WithLabelValues(outcome).Inc()
}

// AddMetricRows counts derived rows written for an entity ("item", "reply").
func AddMetricRows(entity string, n int) {
	Init()
	crawlerMetricRowsTotal.WithLabelValues(entity).Add(float64(n))
}
