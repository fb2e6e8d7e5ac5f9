// Package metrics provides Prometheus metrics for the RAD worker.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure reasons recorded on jobs_failed_total.
const (
	ReasonEmpty       = "empty"
	ReasonPreparation = "preparation"
	ReasonDetection   = "detection"
)

// Delivery attempt outcomes recorded on delivery_attempts_total.
const (
	OutcomeSuccess     = "success"
	OutcomeStatusError = "status_error"
	OutcomeTransport   = "transport_error"
)

// Manager manages all Prometheus metrics for the worker.
//
// Every collector is safe for concurrent use, so one Manager is shared by all
// job units.
type Manager struct {
	namespace       string
	subsystem       string
	durationBuckets []float64
	sizeBuckets     []float64
	constLabels     map[string]string
	registry        *prometheus.Registry

	// Job lifecycle
	requestDuration     prometheus.Histogram
	preparationDuration prometheus.Histogram
	processingDuration  prometheus.Histogram
	dataSize            prometheus.Histogram
	jobsPublished       prometheus.Counter
	jobsFailed          *prometheus.CounterVec
	activeUnits         prometheus.Gauge

	// Delivery
	deliveryAttempts  *prometheus.CounterVec
	deliveryExhausted prometheus.Counter

	// Intake
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	amqpDeliveries      *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "rad",
		subsystem:       "worker",
		durationBuckets: prometheus.DefBuckets,
		sizeBuckets:     prometheus.ExponentialBuckets(10, 4, 8), // 10 .. ~163k rows
		constLabels:     make(map[string]string),
		registry:        prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.requestDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "request_duration_seconds",
		Help:        "Time spent running one job unit end to end",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	})

	m.preparationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "preparation_duration_seconds",
		Help:        "Time spent normalizing raw records into a numeric frame",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	})

	m.processingDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "processing_duration_seconds",
		Help:        "Time spent in anomaly detection, whichever strategy ran",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	})

	m.dataSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "data_size",
		Help:        "Number of input rows per job",
		Buckets:     m.sizeBuckets,
		ConstLabels: m.constLabels,
	})

	m.jobsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "jobs_published_total",
		Help:        "Jobs that reached the delivery stage, whether or not delivery succeeded",
		ConstLabels: m.constLabels,
	})

	m.jobsFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "jobs_failed_total",
		Help:        "Jobs that ended before delivery, by reason",
		ConstLabels: m.constLabels,
	}, []string{"reason"})

	m.activeUnits = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "active_units",
		Help:        "Job units currently running",
		ConstLabels: m.constLabels,
	})

	m.deliveryAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "delivery_attempts_total",
		Help:        "Delivery attempts to the next service, by outcome",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.deliveryExhausted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "delivery_exhausted_total",
		Help:        "Deliveries that failed on every attempt",
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request duration in seconds",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.amqpDeliveries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "amqp_deliveries_total",
		Help:        "Jobs received from the message queue, by outcome",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})
}

// ObserveRequestDuration records the duration of one job unit.
func (m *Manager) ObserveRequestDuration(d time.Duration) {
	m.requestDuration.Observe(d.Seconds())
}

// ObservePreparationDuration records the duration of the normalization stage.
func (m *Manager) ObservePreparationDuration(d time.Duration) {
	m.preparationDuration.Observe(d.Seconds())
}

// ObserveProcessingDuration records the duration of the detection stage.
func (m *Manager) ObserveProcessingDuration(d time.Duration) {
	m.processingDuration.Observe(d.Seconds())
}

// ObserveDataSize records the input row count of a job.
func (m *Manager) ObserveDataSize(rows int) {
	m.dataSize.Observe(float64(rows))
}

// IncJobsPublished increments the jobs published counter.
func (m *Manager) IncJobsPublished() {
	m.jobsPublished.Inc()
}

// IncJobFailed increments the failed jobs counter for reason.
func (m *Manager) IncJobFailed(reason string) {
	m.jobsFailed.WithLabelValues(reason).Inc()
}

// UnitStarted marks a job unit as running.
func (m *Manager) UnitStarted() {
	m.activeUnits.Inc()
}

// UnitFinished marks a job unit as finished.
func (m *Manager) UnitFinished() {
	m.activeUnits.Dec()
}

// IncDeliveryAttempt records one delivery attempt with its outcome.
func (m *Manager) IncDeliveryAttempt(outcome string) {
	m.deliveryAttempts.WithLabelValues(outcome).Inc()
}

// IncDeliveryExhausted records a delivery that failed on every attempt.
func (m *Manager) IncDeliveryExhausted() {
	m.deliveryExhausted.Inc()
}

// RecordHTTPRequest records an intake HTTP request and its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, d time.Duration) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(d.Seconds())
}

// RecordAMQPDelivery records a message received from the job queue.
func (m *Manager) RecordAMQPDelivery(outcome string) {
	m.amqpDeliveries.WithLabelValues(outcome).Inc()
}

// Registry returns the registry the manager's collectors are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Default returns the global metrics manager.
func Default() *Manager {
	return globalManager
}

// RecordHTTPRequest records an HTTP request on the global manager.
func RecordHTTPRequest(endpoint, method, statusCode string, d time.Duration) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, d)
}

// RecordAMQPDelivery records a queue delivery on the global manager.
func RecordAMQPDelivery(outcome string) {
	globalManager.RecordAMQPDelivery(outcome)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RegisterRuntimeCollectors adds Go runtime and process collectors to the
// manager's registry. Calling it twice is a no-op.
func (m *Manager) RegisterRuntimeCollectors() error {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("%w: %w", ErrRegister, err)
		}
	}
	return nil
}
