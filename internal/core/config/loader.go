package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. Options missing from the file
// keep their DefaultConfig values.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration after expanding ${ENV} references.
func Parse(data []byte) (*AppConfig, error) {
	cfg := DefaultConfig()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks option ranges and enumerations.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Limiter.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("limiter.max_requests must be positive"))
	}
	if c.Limiter.Window <= 0 {
		errs = append(errs, fmt.Errorf("limiter.window must be positive"))
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_size must be positive"))
	}
	switch c.Cache.FullPolicy {
	case "evict_oldest", "reject":
	default:
		errs = append(errs, fmt.Errorf("cache.full_policy %q is not evict_oldest or reject", c.Cache.FullPolicy))
	}
	if c.Batch.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("batch.max_size must be positive"))
	}
	if c.Retry.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_queue_size must be positive"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must not be negative"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay is below retry.base_delay"))
	}
	if !(c.Network.ExcellentBelow < c.Network.GoodBelow && c.Network.GoodBelow < c.Network.FairBelow) {
		errs = append(errs, fmt.Errorf("network thresholds must increase: excellent < good < fair"))
	}
	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("redis.url is required for the redis backend"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not memory, redis or postgres", c.Storage.Backend))
	}
	return errors.Join(errs...)
}
