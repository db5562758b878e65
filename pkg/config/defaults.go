package config

import (
	"path/filepath"
	"strings"

	"github.com/marmos91/assetrepo/pkg/metrics"
	"github.com/marmos91/assetrepo/pkg/progress"
	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/marmos91/assetrepo/pkg/store/s3"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are filled for every store type so that
//     generated config files document all of them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyRepositoryDefaults(&cfg.Repository)
	applyStoreDefaults(&cfg.Store)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyRepositoryDefaults(cfg *RepositoryConfig) {
	if cfg.ThrottleDelay == 0 {
		cfg.ThrottleDelay = progress.DefaultDelay
	}
}

// applyStoreDefaults sets store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	setDefault(cfg.Memory, "latency", "0s")
	setDefault(cfg.Memory, "preview_bytes", store.DefaultPreviewBytes)

	setDefault(cfg.Badger, "db_path", filepath.Join(getConfigDir(), "data"))
	setDefault(cfg.Badger, "in_memory", false)
	setDefault(cfg.Badger, "preview_bytes", store.DefaultPreviewBytes)

	setDefault(cfg.S3, "region", "us-east-1")
	setDefault(cfg.S3, "bucket", "")
	setDefault(cfg.S3, "key_prefix", "")
	setDefault(cfg.S3, "endpoint", "")
	setDefault(cfg.S3, "force_path_style", false)
	setDefault(cfg.S3, "max_retries", 10)
	setDefault(cfg.S3, "part_size", s3.DefaultPartSize)
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = metrics.DefaultPort
	}
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// GetDefaultConfig returns a Config with every default applied.
//
// Used by the init command to generate a sample configuration file.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
