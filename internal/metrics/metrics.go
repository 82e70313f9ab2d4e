// Package metrics exposes Prometheus collectors for the frontier service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesCrawledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_pages_crawled_total",
			Help: "Total number of pages crawled successfully.",
		},
	)

	pagesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_failed_total",
			Help: "Total number of pages that failed to crawl, labeled by error type.",
		},
		[]string{"error_type"},
	)

	urlsDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_urls_discovered_total",
			Help: "Total number of URLs accepted into the frontier.",
		},
	)

	robotsCheckedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_robots_checked_total",
			Help: "Total number of robots.txt checks, labeled by result.",
		},
		[]string{"result"},
	)

	frontierSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_frontier_size",
			Help: "Number of URLs currently queued in the frontier.",
		},
	)

	domainQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawler_domain_queue_size",
			Help: "Number of queued URLs per domain.",
		},
		[]string{"domain"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_active_workers",
			Help: "Number of in-flight fetch tasks.",
		},
	)

	fetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "Histogram of page fetch latencies.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	processingDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_processing_duration_seconds",
			Help:    "Histogram of pipeline processing latencies.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	pageSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_page_size_bytes",
			Help:    "Histogram of crawled page sizes in bytes.",
			Buckets: []float64{1_000, 10_000, 100_000, 1_000_000, 10_000_000},
		},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlSuccess records a successful page fetch.
func ObserveCrawlSuccess(pageBytes int, duration time.Duration) {
	pagesCrawledTotal.Inc()
	if pageBytes > 0 {
		pageSizeBytes.Observe(float64(pageBytes))
	}
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveCrawlFailure records a failed page fetch by error type.
func ObserveCrawlFailure(errorType string) {
	pagesFailedTotal.WithLabelValues(errorType).Inc()
}

// ObserveDiscovered records a URL accepted into the frontier.
func ObserveDiscovered() {
	urlsDiscoveredTotal.Inc()
}

// ObserveRobotsCheck records a robots.txt lookup outcome.
func ObserveRobotsCheck(success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	robotsCheckedTotal.WithLabelValues(result).Inc()
}

// ObserveProcessing records pipeline processing time for a page.
func ObserveProcessing(duration time.Duration) {
	processingDurationSeconds.Observe(duration.Seconds())
}

// SetFrontierSize updates the frontier depth gauge.
func SetFrontierSize(n int) {
	frontierSize.Set(float64(n))
}

// SetDomainQueueSize updates the per-domain depth gauge.
func SetDomainQueueSize(domain string, n int) {
	domainQueueSize.WithLabelValues(SanitizeSite(domain)).Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
