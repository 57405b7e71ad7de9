package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StorageMetrics observes object-store round trips. The nil receiver is a
// no-op so callers never branch on whether metrics are enabled.
type StorageMetrics struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	transferBytes     *prometheus.CounterVec
}

// NewStorageMetrics creates storage metrics, or nil when metrics are disabled.
func NewStorageMetrics() *StorageMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &StorageMetrics{
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatefs_storage_operation_duration_seconds",
				Help:    "Duration of object store operations",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		operationErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatefs_storage_operation_errors_total",
				Help: "Total failed object store operations",
			},
			[]string{"operation"},
		),
		transferBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatefs_storage_transfer_bytes_total",
				Help: "Bytes moved to and from the object store",
			},
			[]string{"direction"}, // "in" (uploads), "out" (downloads)
		),
	}
}

// ObserveOperation records one object store round trip.
func (m *StorageMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordTransfer records bytes moved in the given direction.
func (m *StorageMetrics) RecordTransfer(direction string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.transferBytes.WithLabelValues(direction).Add(float64(bytes))
}
