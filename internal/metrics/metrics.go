// Package metrics exposes Prometheus collectors for the crawler, enrichment and read API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	roundsTotal                *prometheus.CounterVec
	nextRound                  prometheus.Gauge
	checkpointsTotal           prometheus.Counter
	extractDegradedTotal       *prometheus.CounterVec
	geocodeTotal               *prometheus.CounterVec
	moderationRetiredTotal     prometheus.Counter
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotto_fetch_attempts_total",
				Help: "HTTP attempts made against the results site, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotto_fetch_failures_total",
				Help: "Requests that gave up, labeled by endpoint and kind (terminal or exhausted).",
			},
			[]string{"endpoint", "kind"},
		)

		roundsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotto_rounds_total",
				Help: "Rounds processed by the crawl controller, labeled by status.",
			},
			[]string{"status"},
		)

		nextRound = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lotto_next_round",
				Help: "Next round the crawl controller will request.",
			},
		)

		checkpointsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lotto_checkpoints_total",
				Help: "Snapshot checkpoints flushed during crawls.",
			},
		)

		extractDegradedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotto_extract_degraded_total",
				Help: "Field groups that fell back to defaults, labeled by group.",
			},
			[]string{"group"},
		)

		geocodeTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotto_geocode_total",
				Help: "Geocoding lookups, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		moderationRetiredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lotto_moderation_retired_total",
				Help: "Stores moved to the retired registry.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lotto_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"key"},
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one HTTP attempt.
func ObserveFetchAttempt(endpoint, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveFetchFailure counts a request that was given up on.
func ObserveFetchFailure(endpoint, kind string) {
	Init()
	fetchFailuresTotal.WithLabelValues(endpoint, kind).Inc()
}

// ObserveRound counts a processed round.
func ObserveRound(status string) {
	Init()
	roundsTotal.WithLabelValues(status).Inc()
}

// SetNextRound records the crawl cursor.
func SetNextRound(round int) {
	Init()
	nextRound.Set(float64(round))
}

// ObserveCheckpoint counts a flushed checkpoint.
func ObserveCheckpoint() {
	Init()
	checkpointsTotal.Inc()
}

// ObserveDegraded counts a field group that fell back to defaults.
func ObserveDegraded(group string) {
	Init()
	extractDegradedTotal.WithLabelValues(group).Inc()
}

// ObserveGeocode counts a geocoding lookup.
func ObserveGeocode(provider, outcome string) {
	Init()
	geocodeTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveRetired counts stores moved by the moderation pass.
func ObserveRetired(n int) {
	Init()
	moderationRetiredTotal.Add(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(key).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
