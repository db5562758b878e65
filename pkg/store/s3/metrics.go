package s3

import (
	"io"
	"time"
)

// S3Metrics provides observability for S3 requests.
//
// This is optional: when not provided, observations are discarded.
type S3Metrics interface {
	// ObserveOperation records an S3 request with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred ("read" or "write")
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64) {}

// metricsReadCloser wraps an object body to count the bytes read from it
type metricsReadCloser struct {
	io.Reader
	body      io.Closer
	metrics   S3Metrics
	bytesRead int64
}

func (m *metricsReadCloser) Read(p []byte) (n int, err error) {
	n, err = m.Reader.Read(p)
	if n > 0 {
		m.bytesRead += int64(n)
	}
	return n, err
}

func (m *metricsReadCloser) Close() error {
	err := m.body.Close()
	if m.bytesRead > 0 {
		m.metrics.RecordBytes("read", m.bytesRead)
	}
	return err
}
