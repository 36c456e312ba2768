// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fransearch_http_requests_total",
			Help: "Total number of HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fransearch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	Searches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fransearch_search_total",
			Help: "Total number of hybrid searches, by whether they ran keyword-only",
		},
		[]string{"degraded"},
	)

	Retrains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fransearch_retrain_total",
			Help: "Total number of training runs by result (success, failure, rejected)",
		},
		[]string{"result"},
	)

	RetrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fransearch_retrain_duration_seconds",
			Help:    "Duration of bundle training in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	BundleRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fransearch_bundle_rows",
			Help: "Number of listings in the active model bundle",
		},
	)

	DatasetVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fransearch_dataset_version",
			Help: "Current dataset version",
		},
	)

	EncoderBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fransearch_encoder_breaker_state",
			Help: "Encoder circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Retrain results.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

// RecordHTTPRequest records one request against its route pattern.
func RecordHTTPRequest(route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordSearch counts one search.
func RecordSearch(degraded bool) {
	Searches.WithLabelValues(strconv.FormatBool(degraded)).Inc()
}

// RecordRetrain counts a training run and, unless it was rejected, its
// duration.
func RecordRetrain(result string, duration time.Duration) {
	Retrains.WithLabelValues(result).Inc()
	if result != ResultRejected {
		RetrainDuration.Observe(duration.Seconds())
	}
}
