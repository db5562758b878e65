package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	rl := cfg.Repository.RateLimit
	if rl.Burst > 0 && rl.RequestsPerSecond == 0 {
		return fmt.Errorf("repository.rate_limit: burst is set but requests_per_second is 0")
	}

	// The selected store's section must at least name its target
	switch cfg.Store.Type {
	case "badger":
		inMemory, _ := cfg.Store.Badger["in_memory"].(bool)
		if path, _ := cfg.Store.Badger["db_path"].(string); path == "" && !inMemory {
			return fmt.Errorf("store.badger: db_path is required unless in_memory is set")
		}
	case "s3":
		if bucket, _ := cfg.Store.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("store.s3: bucket is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
