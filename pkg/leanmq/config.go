package leanmq

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	// Prefix is prepended to every backend key. Default empty.
	Prefix  string
	Redis   RedisConfig
	Retry   RetryConfig
	Streams StreamsConfig
	Queue   QueueConfig
	Webhook WebhookConfig
}

type RedisConfig struct {
	Host                string // default: "localhost"
	Port                int    // default: 6379
	DB                  int
	Password            string
	PoolSize            int   // default: 10
	ConnectionTimeoutMs int64 // default: 5000
	UseTLS              bool  // default: false
}

type RetryConfig struct {
	MaxRetries      int   // default: 3
	RetryIntervalMs int64 // default: 1000
	MaxDelayMs      int64 // default: 30000
	Jitter          bool  // default: true
}

type StreamsConfig struct {
	// MaxLen caps stream length via XADD MAXLEN ~. Zero means uncapped.
	MaxLen    int64
	DLQMaxLen int64
}

type QueueConfig struct {
	ReclaimIdleMs   int64  // default: 30000
	ScanBatchSize   int64  // default: 100
	DefaultConsumer string // default: "consumer1"
}

type WebhookConfig struct {
	ProcessIntervalMs int64 // default: 1000
	BatchSize         int64 // default: 10
	BlockTimeoutMs    int64 // default: 1000
	WorkerTimeoutMs   int64 // default: 5000
	InstallSignals    bool  // default: true
	AutoStart         bool  // default: false
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{
			Host:                "localhost",
			Port:                6379,
			PoolSize:            10,
			ConnectionTimeoutMs: 5000,
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			RetryIntervalMs: 1000,
			MaxDelayMs:      30000,
			Jitter:          true,
		},
		Queue: QueueConfig{
			ReclaimIdleMs:   30000,
			ScanBatchSize:   100,
			DefaultConsumer: "consumer1",
		},
		Webhook: WebhookConfig{
			ProcessIntervalMs: 1000,
			BatchSize:         10,
			BlockTimeoutMs:    1000,
			WorkerTimeoutMs:   5000,
			InstallSignals:    true,
		},
	}
}

// Validate checks that values are within valid ranges. Returns an error
// describing the first validation failure.
func (c Config) Validate() error {
	if c.Redis.Host == "" {
		return errors.New("leanmq: redis host must not be empty")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return errors.New("leanmq: redis port out of range")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("leanmq: retry max_retries must be >= 0")
	}
	if c.Retry.RetryIntervalMs <= 0 {
		return errors.New("leanmq: retry interval must be > 0")
	}
	if c.Retry.MaxDelayMs < c.Retry.RetryIntervalMs {
		return errors.New("leanmq: retry max_delay must be >= retry interval")
	}
	if c.Queue.ScanBatchSize <= 0 {
		return errors.New("leanmq: queue scan_batch_size must be > 0")
	}
	if c.Webhook.BatchSize <= 0 {
		return errors.New("leanmq: webhook batch_size must be > 0")
	}
	return nil
}

// WithDefaults returns a new Config with zero-value numeric and string fields
// replaced by defaults. Prefix is preserved as-is: an empty prefix is valid.
// Boolean fields (Redis.UseTLS, Retry.Jitter, Webhook.InstallSignals,
// Webhook.AutoStart) and the Streams caps are kept as given.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	result := c

	if result.Redis.Host == "" {
		result.Redis.Host = defaults.Redis.Host
	}
	if result.Redis.Port == 0 {
		result.Redis.Port = defaults.Redis.Port
	}
	if result.Redis.PoolSize == 0 {
		result.Redis.PoolSize = defaults.Redis.PoolSize
	}
	if result.Redis.ConnectionTimeoutMs == 0 {
		result.Redis.ConnectionTimeoutMs = defaults.Redis.ConnectionTimeoutMs
	}

	if result.Retry.MaxRetries == 0 {
		result.Retry.MaxRetries = defaults.Retry.MaxRetries
	}
	if result.Retry.RetryIntervalMs == 0 {
		result.Retry.RetryIntervalMs = defaults.Retry.RetryIntervalMs
	}
	if result.Retry.MaxDelayMs == 0 {
		result.Retry.MaxDelayMs = defaults.Retry.MaxDelayMs
	}

	if result.Queue.ReclaimIdleMs == 0 {
		result.Queue.ReclaimIdleMs = defaults.Queue.ReclaimIdleMs
	}
	if result.Queue.ScanBatchSize == 0 {
		result.Queue.ScanBatchSize = defaults.Queue.ScanBatchSize
	}
	if result.Queue.DefaultConsumer == "" {
		result.Queue.DefaultConsumer = defaults.Queue.DefaultConsumer
	}

	if result.Webhook.ProcessIntervalMs == 0 {
		result.Webhook.ProcessIntervalMs = defaults.Webhook.ProcessIntervalMs
	}
	if result.Webhook.BatchSize == 0 {
		result.Webhook.BatchSize = defaults.Webhook.BatchSize
	}
	if result.Webhook.BlockTimeoutMs == 0 {
		result.Webhook.BlockTimeoutMs = defaults.Webhook.BlockTimeoutMs
	}
	if result.Webhook.WorkerTimeoutMs == 0 {
		result.Webhook.WorkerTimeoutMs = defaults.Webhook.WorkerTimeoutMs
	}

	return result
}

// ConfigFromEnv reads Redis connection settings from environment variables
// and returns a Config with those values set. Unset variables use defaults.
//
// Environment variables:
//   - REDIS_HOST: Redis hostname (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_DB: Redis database number (default: 0)
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_USE_TLS: Enable TLS ("true" or "1") (default: false)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Redis.Port = p
		}
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	tlsEnv := os.Getenv("REDIS_USE_TLS")
	cfg.Redis.UseTLS = (tlsEnv == "true" || tlsEnv == "1")

	return cfg
}
