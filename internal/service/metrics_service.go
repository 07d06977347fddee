package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface, the print worker,
// quota checks and reservations. A nil *MetricsService is a valid no-op.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	cacheLatency         prometheus.Observer
	cacheResults         *prometheus.CounterVec
	jobsProcessed        *prometheus.CounterVec
	submitDuration       prometheus.Observer
	queueDepth           prometheus.Gauge
	quotaChecks          *prometheus.CounterVec
	reservationConflicts prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	jobsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "print_jobs_processed_total",
		Help: "Print jobs finished by the worker, by final status",
	}, []string{"status"})

	submitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "print_submit_duration_seconds",
		Help:    "Duration of print system submissions",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "print_queue_depth",
		Help: "Pending print jobs seen by the last queue listing",
	})

	quotaChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_checks_total",
		Help: "Quota check-and-consume calls by result",
	}, []string{"result"})

	reservationConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_conflicts_total",
		Help: "Reservation attempts rejected because the slot was taken",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheResults, jobsProcessed, submitDuration,
		queueDepth, quotaChecks, reservationConflicts, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheResults:         cacheResults,
		jobsProcessed:        jobsProcessed,
		submitDuration:       submitDuration,
		queueDepth:           queueDepth,
		quotaChecks:          quotaChecks,
		reservationConflicts: reservationConflicts,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheResults.WithLabelValues("hit").Inc()
	} else {
		m.cacheResults.WithLabelValues("miss").Inc()
	}
}

// RecordJobProcessed counts a job the worker moved to a final status.
func (m *MetricsService) RecordJobProcessed(status string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(status).Inc()
}

// ObserveSubmit records how long the print system took to accept or reject a job.
func (m *MetricsService) ObserveSubmit(duration time.Duration) {
	if m == nil {
		return
	}
	m.submitDuration.Observe(duration.Seconds())
}

// SetQueueDepth publishes the number of pending jobs.
func (m *MetricsService) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// RecordQuotaCheck counts a quota decision ("authorized", "rejected" or "error").
func (m *MetricsService) RecordQuotaCheck(result string) {
	if m == nil {
		return
	}
	m.quotaChecks.WithLabelValues(result).Inc()
}

// RecordReservationConflict counts a rejected double booking.
func (m *MetricsService) RecordReservationConflict() {
	if m == nil {
		return
	}
	m.reservationConflicts.Inc()
}
