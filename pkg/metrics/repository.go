package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/assetrepo/pkg/progress"
	"github.com/marmos91/assetrepo/pkg/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// repositoryMetrics is the Prometheus implementation of repository.Metrics.
//
// This implementation collects:
//   - Operation counts by outcome (success or error category)
//   - Operation latency
//   - Time spent waiting for rate limiter admission
//   - Bytes streamed per transfer type
//   - Deliveries dropped by the subscriber gate
//   - Number of registered subscribers
type repositoryMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	admissionWait     prometheus.Histogram
	transferBytes     *prometheus.CounterVec
	transfersTotal    *prometheus.CounterVec
	suppressedTotal   *prometheus.CounterVec
	subscribers       prometheus.Gauge
}

// NewRepositoryMetrics creates a new Prometheus-backed repository.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the repository to use its built-in no-op implementation.
func NewRepositoryMetrics() repository.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newRepositoryMetrics(GetRegistry())
}

func newRepositoryMetrics(reg prometheus.Registerer) *repositoryMetrics {
	return &repositoryMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetrepo_operations_total",
				Help: "Total number of repository operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "assetrepo_operation_duration_seconds",
				Help: "Duration of repository operations in seconds",
				Buckets: []float64{
					0.0005, // 500us
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
					30.0,   // 30s
				},
			},
			[]string{"operation"},
		),
		admissionWait: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assetrepo_admission_wait_seconds",
				Help:    "Time operations waited for the rate limiter",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		transferBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetrepo_transfer_bytes_total",
				Help: "Total bytes streamed by transfer type (create, update, read)",
			},
			[]string{"type"},
		),
		transfersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetrepo_transfers_total",
				Help: "Total number of completed transfers by transfer type",
			},
			[]string{"type"},
		),
		suppressedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetrepo_suppressed_deliveries_total",
				Help: "Callbacks dropped because the subscriber unsubscribed",
			},
			[]string{"operation"},
		),
		subscribers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "assetrepo_subscribers",
				Help: "Number of registered subscribers",
			},
		),
	}
}

// ObserveOperation implements repository.Metrics.ObserveOperation
func (m *repositoryMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveAdmission implements repository.Metrics.ObserveAdmission
func (m *repositoryMetrics) ObserveAdmission(wait time.Duration) {
	m.admissionWait.Observe(wait.Seconds())
}

// RecordTransfer implements repository.Metrics.RecordTransfer
func (m *repositoryMetrics) RecordTransfer(typ progress.TransferType, bytes int64) {
	m.transfersTotal.WithLabelValues(string(typ)).Inc()
	m.transferBytes.WithLabelValues(string(typ)).Add(float64(bytes))
}

// RecordSuppressed implements repository.Metrics.RecordSuppressed
func (m *repositoryMetrics) RecordSuppressed(operation string) {
	m.suppressedTotal.WithLabelValues(operation).Inc()
}

// SetSubscribers implements repository.Metrics.SetSubscribers
func (m *repositoryMetrics) SetSubscribers(n int) {
	m.subscribers.Set(float64(n))
}

// status maps an operation outcome to a bounded label value.
func status(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	if code, ok := repository.CodeOf(err); ok {
		return code.String()
	}
	return "error"
}
