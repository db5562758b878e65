package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/internal/ratelimiter"
	"github.com/marmos91/assetrepo/pkg/metrics"
	"github.com/marmos91/assetrepo/pkg/repository"
	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/marmos91/assetrepo/pkg/store/badger"
	"github.com/marmos91/assetrepo/pkg/store/memory"
	"github.com/marmos91/assetrepo/pkg/store/s3"
	"github.com/mitchellh/mapstructure"
)

// ConfigureLogging applies the logging section to the global logger.
func ConfigureLogging(cfg *LoggingConfig) error {
	if err := logger.Configure(cfg.Level, cfg.Format, cfg.Output); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	return nil
}

// CreateStore creates a store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/store/memory (ephemeral, optional simulated latency)
//   - "badger": Uses pkg/store/badger (BadgerDB storage, persistent)
//   - "s3": Uses pkg/store/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Store configuration
//   - s3Metrics: Metrics for the S3 store (nil for no-op)
//
// Returns:
//   - store.Store: Initialized store
//   - error: Configuration or initialization error
func CreateStore(ctx context.Context, cfg *StoreConfig, s3Metrics s3.S3Metrics) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return createMemoryStore(cfg.Memory)
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	case "s3":
		return createS3Store(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, badger, s3)", cfg.Type)
	}
}

// decodeOptions decodes a store section, accepting duration strings
// ("250ms") and string-typed numbers from environment overrides.
func decodeOptions(options map[string]any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// createMemoryStore creates an in-memory store.
func createMemoryStore(options map[string]any) (store.Store, error) {
	var storeCfg memory.MemoryStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory store options: %w", err)
	}

	if storeCfg.Latency > 0 {
		logger.Info("Memory store initialized with simulated latency %s", storeCfg.Latency)
	}
	return memory.NewMemoryStore(storeCfg), nil
}

// createBadgerStore creates a BadgerDB-based persistent store.
func createBadgerStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg badger.BadgerStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store options: %w", err)
	}

	s, err := badger.NewBadgerStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	logger.Info("Badger store initialized: path=%s, in_memory=%t", storeCfg.DBPath, storeCfg.InMemory)
	return s, nil
}

// s3Options is the YAML shape of the s3 store section.
type s3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`
	PreviewBytes    int    `mapstructure:"preview_bytes"`
	PartSize        int    `mapstructure:"part_size"`
}

// createS3Store creates an S3-based store.
func createS3Store(ctx context.Context, options map[string]any, s3Metrics s3.S3Metrics) (store.Store, error) {
	var storeCfg s3Options
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store options: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	s, err := s3.NewS3Store(ctx, s3.S3StoreConfig{
		Client:       client,
		Bucket:       storeCfg.Bucket,
		KeyPrefix:    storeCfg.KeyPrefix,
		PreviewBytes: storeCfg.PreviewBytes,
		PartSize:     storeCfg.PartSize,
		Metrics:      s3Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)
	return s, nil
}

// newS3Client builds an S3 client from the store options.
func newS3Client(ctx context.Context, storeCfg s3Options) (*awss3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials when provided, otherwise the default chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storeCfg.AccessKeyID, storeCfg.SecretAccessKey, ""),
		))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// MinIO, Localstack and friends
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
		if storeCfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// NewRepository creates the store selected by cfg and wraps it in a
// repository configured with the repository and metrics sections.
//
// Parameters:
//   - ctx: Context for store initialization
//   - cfg: Complete configuration
//   - m: Metrics created by InitializeMetrics (nil for no-op)
//
// Returns:
//   - *repository.Repository: Ready repository (Close it to release the store)
//   - error: Store initialization error
func NewRepository(ctx context.Context, cfg *Config, m *MetricsResult) (*repository.Repository, error) {
	var repoMetrics repository.Metrics
	var s3Metrics s3.S3Metrics
	if m != nil {
		repoMetrics = m.Repository
		s3Metrics = m.S3
	}

	s, err := CreateStore(ctx, &cfg.Store, s3Metrics)
	if err != nil {
		return nil, err
	}

	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Healthcheck(healthCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("store healthcheck failed: %w", err)
	}

	rl := cfg.Repository.RateLimit
	limiter := ratelimiter.New(rl.RequestsPerSecond, rl.Burst)
	metrics.RegisterRateLimiter(limiter)

	return repository.New(s, repository.Config{
		ThrottleDelay: cfg.Repository.ThrottleDelay,
		Limiter:       limiter,
		Metrics:       repoMetrics,
	}), nil
}
