package leanmq_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

func newTestWebhook(t *testing.T) *leanmq.Webhook {
	t.Helper()
	_, cli := newTestRedis(t)
	client := leanmq.NewClientWithRedis(cli, testConfig())
	t.Cleanup(func() { client.Close() })
	return leanmq.NewWebhookWithService(leanmq.NewQueueServiceWithClient(client))
}

func TestRouter_NormalizePath(t *testing.T) {
	assert.Equal(t, "/order/status", leanmq.NormalizePath("/order/status/"))
	assert.Equal(t, "/order/status", leanmq.NormalizePath("order/status"))
	assert.Equal(t, "/order", leanmq.NormalizePath("/order"))
	assert.Equal(t, "/", leanmq.NormalizePath("/"))
}

func TestRouter_PathToQueueName(t *testing.T) {
	name, err := leanmq.PathToQueueName("/order/status")
	require.NoError(t, err)
	assert.Equal(t, "order_status", name)

	name, err = leanmq.PathToQueueName("/o/s")
	require.NoError(t, err)
	assert.Equal(t, "o_s", name)

	name, err = leanmq.PathToQueueName("/order-events/v1.2")
	require.NoError(t, err)
	assert.Equal(t, "order_events_v1_2", name)

	_, err = leanmq.PathToQueueName("/")
	assert.Error(t, err)
}

func TestRouter_RegisterCreatesQueuePair(t *testing.T) {
	wh := newTestWebhook(t)
	ctx := context.Background()

	handler := func(ctx context.Context, msg *leanmq.Message) error { return nil }
	require.NoError(t, wh.Register(ctx, "/order/status/", handler))

	route, ok := wh.RouteForPath("/order/status")
	require.True(t, ok)
	assert.Equal(t, "/order/status", route.Path)
	assert.Equal(t, "order_status", route.QueueName)

	// Both directions of the mapping resolve.
	route2, ok := wh.RouteForQueue("order_status")
	require.True(t, ok)
	assert.Same(t, route, route2)

	// The queue pair exists.
	q, err := wh.Service().GetQueue(ctx, "order_status")
	require.NoError(t, err)
	assert.Equal(t, "order_status", q.Name())
	_, err = wh.Service().GetDeadLetterQueue(ctx, "order_status")
	require.NoError(t, err)
}

func TestRouter_RegisterSamePathReplacesHandler(t *testing.T) {
	wh := newTestWebhook(t)
	ctx := context.Background()

	seen := ""
	require.NoError(t, wh.Register(ctx, "/a", func(ctx context.Context, msg *leanmq.Message) error {
		seen = "first"
		return nil
	}))
	require.NoError(t, wh.Register(ctx, "/a/", func(ctx context.Context, msg *leanmq.Message) error {
		seen = "second"
		return nil
	}))

	assert.Len(t, wh.Routes(), 1, "replacement keeps a single route")

	_, err := wh.Send(ctx, "/a", map[string]any{"x": float64(1)})
	require.NoError(t, err)
	wh.ProcessOnce(ctx, leanmq.ProcessOptions{})
	assert.Equal(t, "second", seen)
}

func TestRouter_RejectsNilHandler(t *testing.T) {
	wh := newTestWebhook(t)
	assert.Error(t, wh.Register(context.Background(), "/a", nil))
}

func TestRouter_SendWithoutRouteCreatesQueue(t *testing.T) {
	wh := newTestWebhook(t)
	ctx := context.Background()

	id, err := wh.Send(ctx, "/billing/events/", map[string]any{"amount": float64(10)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	q, err := wh.Service().GetQueue(ctx, "billing_events")
	require.NoError(t, err)

	msgs, err := q.GetMessages(ctx, 1, 0, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, float64(10), msgs[0].Body["amount"])
	assert.Equal(t, "/billing/events", msgs[0].Path, "route path travels with the message")
}

func TestRouter_RoutesReturnsRegistrationOrder(t *testing.T) {
	wh := newTestWebhook(t)
	ctx := context.Background()

	handler := func(ctx context.Context, msg *leanmq.Message) error { return nil }
	require.NoError(t, wh.Register(ctx, "/c", handler))
	require.NoError(t, wh.Register(ctx, "/a", handler))
	require.NoError(t, wh.Register(ctx, "/b", handler))

	routes := wh.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "/c", routes[0].Path)
	assert.Equal(t, "/a", routes[1].Path)
	assert.Equal(t, "/b", routes[2].Path)
}
