// Package metrics exposes Prometheus collectors for the forum crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reasons recorded by ObserveRejected.
const (
	RejectStale     = "stale"
	RejectNoID      = "no_id"
	RejectDuplicate = "duplicate"
)

var (
	crawlerFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetches_total",
			Help: "Total number of page fetches, labeled by site, page kind and status.",
		},
		[]string{"site", "kind", "status"},
	)

	crawlerBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	crawlerFetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetch_retries_total",
			Help: "Total number of fetch retries, labeled by site.",
		},
		[]string{"site"},
	)

	crawlerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_poll_cycles_total",
			Help: "Total number of listing poll cycles, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	crawlerThreadVisitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_thread_visits_total",
			Help: "Total number of thread page visits, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	crawlerMessagesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_messages_rejected_total",
			Help: "Candidate messages dropped before emission, labeled by reason.",
		},
		[]string{"reason"},
	)

	crawlerMessagesEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_messages_emitted_total",
			Help: "Messages handed to the sink.",
		},
	)

	crawlerSinkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_sink_failures_total",
			Help: "Sink emission failures, labeled by sink.",
		},
		[]string{"sink"},
	)

	crawlerLedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_ledger_ids",
			Help: "Number of message ids currently held by the dedup ledger.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	crawlerProbeTLSHandshakeTimeoutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_probe_tls_handshake_timeout_total",
			Help: "Total TLS handshake timeouts encountered while probing robots.txt.",
		},
	)

	crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
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

// ObserveFetch records one page fetch. status is an HTTP code or "error".
func ObserveFetch(site, kind, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlerFetchesTotal.WithLabelValues(sanitizedSite, kind, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveFetchRetry counts a retried fetch attempt.
func ObserveFetchRetry(site string) {
	crawlerFetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveCycle counts a completed poll cycle.
func ObserveCycle(outcome string) {
	crawlerCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveThreadVisit counts a thread visit.
func ObserveThreadVisit(outcome string) {
	crawlerThreadVisitsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRejected counts a candidate dropped for reason.
func ObserveRejected(reason string) {
	crawlerMessagesRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveEmitted counts a message handed to the sink.
func ObserveEmitted() {
	crawlerMessagesEmittedTotal.Inc()
}

// ObserveSinkFailure counts a failed emission.
func ObserveSinkFailure(sink string) {
	crawlerSinkFailuresTotal.WithLabelValues(sink).Inc()
}

// SetLedgerSize publishes the current ledger size.
func SetLedgerSize(n int) {
	crawlerLedgerSize.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProbeTLSHandshakeTimeout increments the probe-specific handshake timeout counter.
func ObserveProbeTLSHandshakeTimeout() {
	crawlerProbeTLSHandshakeTimeoutTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
