package config

import (
	"context"

	"github.com/marmos91/assetrepo/pkg/metrics"
	"github.com/marmos91/assetrepo/pkg/repository"
	"github.com/marmos91/assetrepo/pkg/store/s3"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Repository collects repository metrics (nil if disabled)
	Repository repository.Metrics

	// S3 collects S3 request metrics (nil if disabled)
	S3 s3.S3Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled, every field is nil and components fall back to
// their no-op implementations.
//
// Parameters:
//   - cfg: The complete configuration
//   - healthcheck: Backs the server's /healthz endpoint (may be nil)
func InitializeMetrics(cfg *Config, healthcheck func(ctx context.Context) error) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port:        cfg.Metrics.Port,
			Healthcheck: healthcheck,
		}),
		Repository: metrics.NewRepositoryMetrics(),
		S3:         metrics.NewS3Metrics(),
	}
}
