package repository

import (
	"time"

	"github.com/marmos91/assetrepo/pkg/progress"
)

// Metrics provides observability for repository operations.
//
// This interface is optional: when not provided, operations proceed
// without metrics collection. pkg/metrics provides the Prometheus
// implementation.
type Metrics interface {
	// ObserveOperation records a completed operation with its name,
	// duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// ObserveAdmission records how long an operation waited for the
	// rate limiter
	ObserveAdmission(wait time.Duration)

	// RecordTransfer records the bytes moved by a finished transfer
	RecordTransfer(transferType progress.TransferType, bytes int64)

	// RecordSuppressed records a callback dropped by the subscriber gate
	RecordSuppressed(operation string)

	// SetSubscribers updates the number of registered subscribers
	SetSubscribers(count int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) ObserveAdmission(time.Duration) {}
func (noopMetrics) RecordTransfer(progress.TransferType, int64) {}
func (noopMetrics) RecordSuppressed(string) {}
func (noopMetrics) SetSubscribers(int) {}
