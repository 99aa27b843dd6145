package leanmq_test

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

// newTestRedis starts an in-process Redis and returns a go-redis client
// pointed at it. Both are cleaned up with the test.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	cli := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return s, cli
}

func testConfig() leanmq.Config {
	cfg := leanmq.DefaultConfig()
	cfg.Prefix = "test:"
	// Fail fast in tests; production defaults wait much longer.
	cfg.Retry.MaxRetries = 1
	cfg.Retry.RetryIntervalMs = 10
	cfg.Retry.Jitter = false
	return cfg
}

// miniredisRestart brings a fresh, empty miniredis up on a specific address.
func miniredisRestart(t *testing.T, addr string) *miniredis.Miniredis {
	t.Helper()
	s := miniredis.NewMiniRedis()
	require.NoError(t, s.StartAddr(addr))
	return s
}

// newTestService builds a QueueService over a fresh miniredis.
func newTestService(t *testing.T) (*miniredis.Miniredis, *leanmq.QueueService) {
	t.Helper()
	s, cli := newTestRedis(t)

	client := leanmq.NewClientWithRedis(cli, testConfig())
	t.Cleanup(func() { client.Close() })

	return s, leanmq.NewQueueServiceWithClient(client)
}
