// Package metrics exposes Prometheus collectors for the everylot bot.
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
	runsTotal                 *prometheus.CounterVec
	publishAttemptsTotal      *prometheus.CounterVec
	publishDurationSeconds    prometheus.Histogram
	imageFetchTotal           *prometheus.CounterVec
	commitConflictsTotal      prometheus.Counter
	unpostedLots              prometheus.Gauge
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "everylot_runs_total",
				Help: "Total number of bot runs, labeled by outcome status.",
			},
			[]string{"status"},
		)

		publishAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "everylot_publish_attempts_total",
				Help: "Total feed publish attempts, labeled by result class.",
			},
			[]string{"result"},
		)

		publishDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "everylot_publish_duration_seconds",
				Help:    "Histogram of feed publish latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		imageFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "everylot_image_fetch_total",
				Help: "Total street-level image resolutions, labeled by result.",
			},
			[]string{"result"},
		)

		commitConflictsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "everylot_commit_conflicts_total",
				Help: "Total commit races lost to a concurrent invocation.",
			},
		)

		unpostedLots = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "everylot_unposted_lots",
				Help: "Number of lots still waiting to be posted.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the run counter for the given outcome status.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// ObservePublish records one publish attempt and its latency.
func ObservePublish(result string, duration time.Duration) {
	publishAttemptsTotal.WithLabelValues(result).Inc()
	publishDurationSeconds.Observe(duration.Seconds())
}

// ObserveImageFetch increments the image resolution counter.
func ObserveImageFetch(available bool) {
	result := "ok"
	if !available {
		result = "unavailable"
	}
	imageFetchTotal.WithLabelValues(result).Inc()
}

// IncCommitConflict counts a lost commit race.
func IncCommitConflict() {
	commitConflictsTotal.Inc()
}

// SetUnpostedLots records how many lots remain unposted.
func SetUnpostedLots(n int64) {
	unpostedLots.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}
