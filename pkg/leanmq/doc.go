// Package leanmq is a lightweight message queue library on top of Redis
// Streams, built to replace internal HTTP webhooks between services with
// durable, at-least-once delivery while keeping a webhook-shaped API.
//
// # Quick Start
//
// Create a queue service and publish:
//
//	cfg := leanmq.DefaultConfig()
//	cfg.Prefix = "myapp:"
//
//	svc, err := leanmq.NewQueueService(cfg)
//	q, dlq, err := svc.CreateQueuePair(ctx, "orders")
//	id, err := q.Publish(ctx, map[string]any{"orderId": "123"}, 0)
//
// Consume with a consumer group:
//
//	msgs, err := q.GetMessages(ctx, 10, 0, "")
//	for _, m := range msgs {
//	    // ... process m.Body ...
//	}
//	q.Acknowledge(ctx, ids)
//
// # Webhook Pattern
//
// Register path-routed handlers and run them as a background service:
//
//	wh, err := leanmq.NewWebhook(cfg)
//	err = wh.Register(ctx, "/order/status/", func(ctx context.Context, msg *leanmq.Message) error {
//	    fmt.Println("order update:", msg.Body)
//	    return nil
//	})
//	wh.Send(ctx, "/order/status/", map[string]any{"id": "123", "status": "shipped"})
//
//	svc := wh.RunService(leanmq.ServiceOptions{})
//	defer svc.Stop()
//
// Handlers that return an error never crash the service: the message is
// moved to the queue's dead letter queue with the error recorded, and the
// dispatch loop continues.
//
// # Reliability
//
// Every queue has a paired dead letter queue ({name}:dlq). Messages are
// claimed through a consumer group, stay pending until acknowledged, and
// are reclaimable by other consumers after an idle threshold, so worker
// crashes never lose messages. Publishes can carry a TTL; expired entries
// are removed by SweepExpired.
package leanmq
