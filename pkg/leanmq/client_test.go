package leanmq_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

func TestClient_PingSucceeds(t *testing.T) {
	_, cli := newTestRedis(t)
	client := leanmq.NewClientWithRedis(cli, testConfig())
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))
}

func TestClient_UseAfterCloseFails(t *testing.T) {
	_, cli := newTestRedis(t)
	client := leanmq.NewClientWithRedis(cli, testConfig())

	require.NoError(t, client.Close())
	assert.True(t, client.Closed())

	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, leanmq.ErrClientClosed)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	_, cli := newTestRedis(t)
	client := leanmq.NewClientWithRedis(cli, testConfig())

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestClient_ConnectionFailureSurfacesAfterRetries(t *testing.T) {
	s, cli := newTestRedis(t)
	client := leanmq.NewClientWithRedis(cli, testConfig())
	defer client.Close()

	// Kill the backend; the retry envelope is exhausted and the failure
	// surfaces as ErrConnection.
	s.Close()

	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, leanmq.ErrConnection)
}

func TestClient_LogicErrorsAreNotRetried(t *testing.T) {
	_, cli := newTestRedis(t)
	client := leanmq.NewClientWithRedis(cli, testConfig())
	defer client.Close()

	svc := leanmq.NewQueueServiceWithClient(client)
	ctx := context.Background()

	// A claim on a queue whose group does not exist is a logic error, not a
	// transient one: it must surface immediately as QueueNotFound.
	_, _, err := svc.CreateQueuePair(ctx, "known")
	require.NoError(t, err)

	// Drop the stream (and its group) behind the registry's back so the next
	// claim through the library hits NOGROUP.
	require.NoError(t, cli.Del(ctx, "test:known").Err())

	q, err := svc.GetQueue(ctx, "known")
	require.NoError(t, err)
	_, err = q.GetMessages(ctx, 1, 0, "")
	assert.ErrorIs(t, err, leanmq.ErrQueueNotFound)
	assert.NotErrorIs(t, err, leanmq.ErrConnection)
}

func TestClient_NewClientValidatesConfig(t *testing.T) {
	cfg := leanmq.DefaultConfig()
	cfg.Redis.Port = -1

	_, err := leanmq.NewClient(cfg)
	assert.Error(t, err)
}
