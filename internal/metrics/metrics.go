// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_fetched_total",
			Help: "Total pages fetched, labeled by page kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	articlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_articles_total",
			Help: "Total article extractions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Histogram of page fetch latencies.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	backfillDaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_backfill_days_total",
			Help: "Total backfill days processed, labeled by status.",
		},
		[]string{"status"},
	)

	inflightExtractions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_inflight_extractions",
			Help: "Number of extraction tasks currently running.",
		},
	)
)

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetch records a page fetch and its latency.
func ObservePageFetch(kind, outcome string, duration time.Duration) {
	pagesFetchedTotal.WithLabelValues(kind, outcome).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveArticle records one article extraction outcome.
func ObserveArticle(outcome string) {
	articlesTotal.WithLabelValues(outcome).Inc()
}

// ObserveBackfillDay records a processed backfill day.
func ObserveBackfillDay(status string) {
	backfillDaysTotal.WithLabelValues(status).Inc()
}

// IncInflight increments the running extraction gauge.
func IncInflight() {
	inflightExtractions.Inc()
}

// DecInflight decrements the running extraction gauge.
func DecInflight() {
	inflightExtractions.Dec()
}
