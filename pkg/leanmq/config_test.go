package leanmq_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

func TestConfig_DefaultsAreValid(t *testing.T) {
	cfg := leanmq.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, int64(5000), cfg.Redis.ConnectionTimeoutMs)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, int64(1000), cfg.Retry.RetryIntervalMs)
	assert.Equal(t, int64(30000), cfg.Queue.ReclaimIdleMs)
	assert.Equal(t, "consumer1", cfg.Queue.DefaultConsumer)
	assert.Equal(t, int64(1000), cfg.Webhook.ProcessIntervalMs)
	assert.Equal(t, int64(5000), cfg.Webhook.WorkerTimeoutMs)
	assert.True(t, cfg.Webhook.InstallSignals)
	assert.False(t, cfg.Webhook.AutoStart)
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cfg := leanmq.DefaultConfig()
	cfg.Redis.Host = ""
	assert.Error(t, cfg.Validate())

	cfg = leanmq.DefaultConfig()
	cfg.Redis.Port = -1
	assert.Error(t, cfg.Validate())

	cfg = leanmq.DefaultConfig()
	cfg.Retry.RetryIntervalMs = 0
	assert.Error(t, cfg.Validate())

	cfg = leanmq.DefaultConfig()
	cfg.Retry.MaxDelayMs = 1
	assert.Error(t, cfg.Validate())

	cfg = leanmq.DefaultConfig()
	cfg.Webhook.BatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_WithDefaultsFillsZeroFields(t *testing.T) {
	cfg := leanmq.Config{Prefix: "app:"}
	filled := cfg.WithDefaults()

	assert.Equal(t, "app:", filled.Prefix)
	assert.Equal(t, "localhost", filled.Redis.Host)
	assert.Equal(t, 6379, filled.Redis.Port)
	assert.Equal(t, int64(30000), filled.Queue.ReclaimIdleMs)
	assert.Equal(t, int64(10), filled.Webhook.BatchSize)
}

func TestConfig_WithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := leanmq.DefaultConfig()
	cfg.Redis.Host = "redis.internal"
	cfg.Queue.ReclaimIdleMs = 5000

	filled := cfg.WithDefaults()
	assert.Equal(t, "redis.internal", filled.Redis.Host)
	assert.Equal(t, int64(5000), filled.Queue.ReclaimIdleMs)
}

func TestConfig_FromEnvReadsRedisSettings(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.example.com")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_USE_TLS", "1")

	cfg := leanmq.ConfigFromEnv()
	assert.Equal(t, "redis.example.com", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.True(t, cfg.Redis.UseTLS)
}

func TestConfig_FromEnvDefaults(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_USE_TLS", "")

	cfg := leanmq.ConfigFromEnv()
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.False(t, cfg.Redis.UseTLS)
}
