package config

import (
	"time"

	redisclient "github.com/vietddude/storeguard/internal/infra/redis"
	"github.com/vietddude/storeguard/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Client      ClientConfig       `yaml:"client"`
	Limiter     LimiterConfig      `yaml:"limiter"`
	Cache       CacheConfig        `yaml:"cache"`
	Batch       BatchConfig        `yaml:"batch"`
	Retry       RetryConfig        `yaml:"retry"`
	Network     NetworkConfig      `yaml:"network"`
	Storage     StorageConfig      `yaml:"storage"`
	Redis       redisclient.Config `yaml:"redis"`
	Database    postgres.Config    `yaml:"database"`
	Permissions PermissionsConfig  `yaml:"permissions"`
}

// ServerConfig holds HTTP status server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ClientConfig holds settings for the remote API.
type ClientConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LimiterConfig holds sliding window settings.
type LimiterConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	MaxSize      int           `yaml:"max_size"`
	FullPolicy   string        `yaml:"full_policy"` // evict_oldest, reject
	ActiveExpiry bool          `yaml:"active_expiry"`
}

// BatchConfig holds coalescing settings.
type BatchConfig struct {
	Delay          time.Duration `yaml:"delay"`
	MaxSize        int           `yaml:"max_size"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// RetryConfig holds retry queue settings.
type RetryConfig struct {
	MaxQueueSize int           `yaml:"max_queue_size"`
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// NetworkConfig holds connectivity probe settings.
type NetworkConfig struct {
	HealthURL      string        `yaml:"health_url"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	ExcellentBelow time.Duration `yaml:"excellent_below"`
	GoodBelow      time.Duration `yaml:"good_below"`
	FairBelow      time.Duration `yaml:"fair_below"`
	MinProbeGap    time.Duration `yaml:"min_probe_gap"`
}

// StorageConfig selects where cache snapshots and queue metadata live.
type StorageConfig struct {
	Backend          string        `yaml:"backend"`           // memory, redis, postgres
	SnapshotInterval time.Duration `yaml:"snapshot_interval"` // 0 = only on shutdown
}

// PermissionsConfig points at the authorization matrix.
type PermissionsConfig struct {
	MatrixFile string `yaml:"matrix_file"` // empty = built-in matrix
}

// DefaultConfig returns a configuration with every option set.
func DefaultConfig() AppConfig {
	return AppConfig{
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Client: ClientConfig{
			BaseURL:        "http://localhost:3000/api",
			RequestTimeout: 10 * time.Second,
		},
		Limiter: LimiterConfig{MaxRequests: 60, Window: time.Minute},
		Cache: CacheConfig{
			DefaultTTL:   5 * time.Minute,
			MaxSize:      500,
			FullPolicy:   "evict_oldest",
			ActiveExpiry: true,
		},
		Batch: BatchConfig{Delay: 50 * time.Millisecond, MaxSize: 10, MaxConcurrency: 10},
		Retry: RetryConfig{
			MaxQueueSize: 100,
			MaxRetries:   3,
			BaseDelay:    time.Second,
			MaxDelay:     30 * time.Second,
		},
		Network: NetworkConfig{
			HealthURL:      "/health",
			ProbeTimeout:   5 * time.Second,
			ProbeInterval:  30 * time.Second,
			ExcellentBelow: 100 * time.Millisecond,
			GoodBelow:      300 * time.Millisecond,
			FairBelow:      time.Second,
			MinProbeGap:    2 * time.Second,
		},
		Storage: StorageConfig{Backend: "memory"},
		Redis:   redisclient.Config{KeyPrefix: "storeguard:"},
		Database: postgres.Config{
			MaxConns: 10,
			MinConns: 1,
		},
	}
}
