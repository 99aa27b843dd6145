package leanmq_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

func TestSweeper_RemovesExpiredMessages(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	q, _, err := svc.CreateQueuePair(ctx, "jobs")
	require.NoError(t, err)

	_, err = q.Publish(ctx, map[string]any{"x": float64(1)}, 30*time.Millisecond)
	require.NoError(t, err)
	keptID, err := q.Publish(ctx, map[string]any{"x": float64(2)}, time.Hour)
	require.NoError(t, err)
	noTTLID, err := q.Publish(ctx, map[string]any{"x": float64(3)}, 0)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	removed, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	msgs, err := q.GetMessages(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, keptID, msgs[0].ID)
	assert.Equal(t, noTTLID, msgs[1].ID)
}

func TestSweeper_MessageStillClaimableBeforeDeadline(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	q, _, err := svc.CreateQueuePair(ctx, "jobs")
	require.NoError(t, err)

	id, err := q.Publish(ctx, map[string]any{"x": float64(1)}, time.Hour)
	require.NoError(t, err)

	removed, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	msgs, err := q.GetMessages(ctx, 1, 0, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
}

func TestSweeper_CoversDLQsAndMultipleQueues(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	q1, _, err := svc.CreateQueuePair(ctx, "a")
	require.NoError(t, err)
	q2, _, err := svc.CreateQueuePair(ctx, "b")
	require.NoError(t, err)

	// One expiring message per queue, plus one moved to the DLQ before its
	// deadline passes.
	_, err = q1.Publish(ctx, map[string]any{"q": "a"}, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = q2.Publish(ctx, map[string]any{"q": "b"}, 20*time.Millisecond)
	require.NoError(t, err)

	dlqID, err := q1.Publish(ctx, map[string]any{"q": "dlq"}, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = q1.GetMessages(ctx, 10, 0, "")
	require.NoError(t, err)
	_, err = q1.MoveToDLQ(ctx, []string{dlqID}, "fail", nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	removed, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}

func TestSweeper_ScansBeyondOneBatch(t *testing.T) {
	_, cli := newTestRedis(t)
	cfg := testConfig()
	cfg.Queue.ScanBatchSize = 10
	client := leanmq.NewClientWithRedis(cli, cfg)
	t.Cleanup(func() { client.Close() })
	svc := leanmq.NewQueueServiceWithClient(client)

	ctx := context.Background()
	q, _, err := svc.CreateQueuePair(ctx, "bulk")
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, err := q.Publish(ctx, map[string]any{"i": float64(i)}, 10*time.Millisecond)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := q.Publish(ctx, map[string]any{"keep": float64(i)}, 0)
		require.NoError(t, err)
	}

	time.Sleep(40 * time.Millisecond)

	removed, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, removed)

	info, err := q.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.MessageCount)
}

func TestSweeper_DoubleSweepIsANoOp(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	q, _, err := svc.CreateQueuePair(ctx, "jobs")
	require.NoError(t, err)
	_, err = q.Publish(ctx, map[string]any{"x": float64(1)}, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	removed, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
