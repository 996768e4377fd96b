// Package metrics exposes Prometheus collectors for the lead pipeline.
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
	jobsTotal                  *prometheus.CounterVec
	leadsExtractedTotal        *prometheus.CounterVec
	pagesFetchedTotal          *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	queueRedeliveriesTotal     prometheus.Counter
	staleJobsRequeuedTotal     prometheus.Counter
	activeWorkers              prometheus.Gauge
	jobDurationSeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_jobs_total",
				Help: "Total number of jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		leadsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_leads_extracted_total",
				Help: "Total leads extracted, labeled by site.",
			},
			[]string{"site"},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_pages_fetched_total",
				Help: "Total pages fetched, labeled by site and fetch mode.",
			},
			[]string{"site", "mode"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadpipe_fetch_failures_total",
				Help: "Total landing-page fetch failures, labeled by site.",
			},
			[]string{"site"},
		)

		queueRedeliveriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadpipe_queue_redeliveries_total",
				Help: "Total job messages seen more than once.",
			},
		)

		staleJobsRequeuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadpipe_stale_jobs_requeued_total",
				Help: "Total stuck queued jobs re-enqueued by the sweeper.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadpipe_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		jobDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadpipe_job_duration_seconds",
				Help:    "Histogram of end-to-end job processing times.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records a finished job and its wall-clock duration.
func ObserveJob(status string, duration time.Duration) {
	jobsTotal.WithLabelValues(status).Inc()
	jobDurationSeconds.Observe(duration.Seconds())
}

// ObserveLead increments the extracted-lead counter for a site.
func ObserveLead(site string) {
	leadsExtractedTotal.WithLabelValues(site).Inc()
}

// ObservePageFetch records one fetched page. mode is "http" or "headless".
func ObservePageFetch(site, mode string) {
	pagesFetchedTotal.WithLabelValues(site, mode).Inc()
}

// ObserveFetchFailure records a landing-page fetch failure.
func ObserveFetchFailure(site string) {
	fetchFailuresTotal.WithLabelValues(site).Inc()
}

// ObserveRedelivery records a duplicate queue delivery.
func ObserveRedelivery() {
	queueRedeliveriesTotal.Inc()
}

// ObserveStaleRequeue records a stuck job re-enqueued by the sweeper.
func ObserveStaleRequeue() {
	staleJobsRequeuedTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
