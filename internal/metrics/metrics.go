// Package metrics exposes Prometheus collectors for the trendwatch service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_provider_requests_total",
			Help: "Total provider requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	providerRequestSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trendwatch_provider_request_seconds",
			Help:    "Histogram of provider request latencies.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
	)

	providerRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trendwatch_provider_retries_total",
			Help: "Total retried provider requests.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trendwatch_rate_limit_delay_seconds",
			Help:    "Histogram of time spent waiting on the provider rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_runs_total",
			Help: "Total pipeline runs, labeled by final status.",
		},
		[]string{"status"},
	)

	runDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trendwatch_run_duration_seconds",
			Help:    "Histogram of end-to-end pipeline run durations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	recordsNormalizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trendwatch_records_normalized_total",
			Help: "Total records produced by normalization across all runs.",
		},
	)

	recordsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trendwatch_records_written_total",
			Help: "Total records appended to the dataset under a new identity key.",
		},
	)

	recordsReplacedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trendwatch_records_replaced_total",
			Help: "Total records that overwrote an existing identity key.",
		},
	)

	validationFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_validation_findings_total",
			Help: "Total validation findings, labeled by check and severity.",
		},
		[]string{"check", "severity"},
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
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProviderRequest records one provider request with its outcome.
func ObserveProviderRequest(outcome string, duration time.Duration) {
	providerRequestsTotal.WithLabelValues(outcome).Inc()
	providerRequestSeconds.Observe(duration.Seconds())
}

// IncProviderRetry counts a provider request that is about to be retried.
func IncProviderRetry() {
	providerRetriesTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveRun records one finished pipeline run.
func ObserveRun(status string, duration time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// AddNormalizedRecords counts records produced by one normalization pass.
func AddNormalizedRecords(n int) {
	recordsNormalizedTotal.Add(float64(n))
}

// ObserveWrite records the outcome of a dataset write.
func ObserveWrite(written, replaced int) {
	recordsWrittenTotal.Add(float64(written))
	recordsReplacedTotal.Add(float64(replaced))
}

// IncValidationFinding counts one validation finding.
func IncValidationFinding(check, severity string) {
	validationFindingsTotal.WithLabelValues(check, severity).Inc()
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
