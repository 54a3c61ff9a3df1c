// Package metrics provides Prometheus metrics for the pulse pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vitalBuckets covers millisecond vitals up to ~20s; CLS lands in the
// lowest buckets.
var vitalBuckets = []float64{0.05, 0.1, 0.25, 50, 100, 300, 800, 1800, 2500, 3000, 4000, 6000, 10000, 20000}

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion
	ingestAccepted *prometheus.CounterVec
	ingestRejected *prometheus.CounterVec
	vitalValues    *prometheus.HistogramVec
	errorsReported prometheus.Counter

	// Store
	storeRecords   prometheus.Gauge
	storeEvictions prometheus.Counter
	storeLatency   *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	queriesServed  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// Delivery (client side)
	deliveryAttempts  prometheus.Counter
	deliveryFailures  prometheus.Counter
	deliveryRetries   prometheus.Counter
	deliveryDropped   prometheus.Counter
	deliverySucceeded prometheus.Counter

	// Runtime
	heapBytes  prometheus.Gauge
	goroutines prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulse",
		subsystem:        "metrics",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.ingestAccepted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_accepted_total",
		Help:      "Metric records accepted by the ingestion endpoint",
	}, []string{"app"})

	m.ingestRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_rejected_total",
		Help:      "Metric records rejected by the ingestion endpoint",
	}, []string{"reason"})

	m.vitalValues = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "web_vital_value",
		Help:      "Web Vitals values carried by ingested records",
		Buckets:   vitalBuckets,
	}, []string{"vital", "app"})

	m.errorsReported = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "client_errors_reported_total",
		Help:      "Error records carried by ingested snapshots (counts repeats across snapshots)",
	})

	m.storeRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_records",
		Help:      "Records currently retained by the metrics store",
	})

	m.storeEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_evictions_total",
		Help:      "Records evicted by the FIFO retention cap",
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_milliseconds",
		Help:      "Store operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"driver", "op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Store operation failures",
	}, []string{"driver", "op"})

	m.queriesServed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queries_total",
		Help:      "Filtered queries served",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.httpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_errors_total",
		Help:      "HTTP responses with an error status by endpoint, method, type and severity",
	}, []string{"endpoint", "method", "error_type", "severity"})

	m.deliveryAttempts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delivery_attempts_total",
		Help:      "Snapshot delivery attempts made by collectors",
	})

	m.deliverySucceeded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delivery_succeeded_total",
		Help:      "Snapshot deliveries acknowledged by the server",
	})

	m.deliveryFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delivery_failures_total",
		Help:      "Snapshot delivery attempts that failed",
	})

	m.deliveryRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delivery_retries_total",
		Help:      "Delivery retries scheduled after a failure",
	})

	m.deliveryDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delivery_dropped_total",
		Help:      "Snapshots dropped after exhausting retries",
	})

	m.heapBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runtime_heap_bytes",
		Help:      "Bytes of allocated heap objects",
	})

	m.goroutines = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runtime_goroutines",
		Help:      "Number of goroutines",
	})
}

// RecordIngestAccepted counts an accepted record for app.
func RecordIngestAccepted(app string) {
	globalManager.ingestAccepted.WithLabelValues(appLabel(app)).Inc()
}

// RecordIngestRejected counts a rejected payload.
func RecordIngestRejected(reason string) {
	globalManager.ingestRejected.WithLabelValues(reason).Inc()
}

// ObserveVital records one vital value carried by an ingested record.
func ObserveVital(vital, app string, value float64) {
	globalManager.vitalValues.WithLabelValues(vital, appLabel(app)).Observe(value)
}

// RecordErrorsReported adds n client error records.
func RecordErrorsReported(n int) {
	globalManager.errorsReported.Add(float64(n))
}

// UpdateStoreRecords sets the retained record count.
func UpdateStoreRecords(n int) {
	globalManager.storeRecords.Set(float64(n))
}

// RecordStoreEvictions adds n FIFO evictions.
func RecordStoreEvictions(n int) {
	if n > 0 {
		globalManager.storeEvictions.Add(float64(n))
	}
}

// RecordStoreLatency records a store operation duration.
func RecordStoreLatency(driver, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(driver, op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(driver, op string) {
	globalManager.storeErrors.WithLabelValues(driver, op).Inc()
}

// RecordQuery counts a served query.
func RecordQuery() {
	globalManager.queriesServed.Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an error response.
func RecordHTTPError(endpoint, method, errorType, severity string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType, severity).Inc()
}

// RecordDeliveryAttempt counts a delivery attempt.
func RecordDeliveryAttempt() { globalManager.deliveryAttempts.Inc() }

// RecordDeliverySuccess counts an acknowledged delivery.
func RecordDeliverySuccess() { globalManager.deliverySucceeded.Inc() }

// RecordDeliveryFailure counts a failed attempt.
func RecordDeliveryFailure() { globalManager.deliveryFailures.Inc() }

// RecordDeliveryRetry counts a scheduled retry.
func RecordDeliveryRetry() { globalManager.deliveryRetries.Inc() }

// RecordDeliveryDropped counts a snapshot dropped after the retry budget.
func RecordDeliveryDropped() { globalManager.deliveryDropped.Inc() }

// UpdateRuntime sets the heap and goroutine gauges.
func UpdateRuntime(heapBytes uint64, goroutines int) {
	globalManager.heapBytes.Set(float64(heapBytes))
	globalManager.goroutines.Set(float64(goroutines))
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func appLabel(app string) string {
	if app == "" {
		return "Unknown"
	}
	return app
}
