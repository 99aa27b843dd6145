package leanmq

import (
	"context"
	"fmt"
	"time"
)

// ProcessOptions tunes a dispatch iteration. A zero BatchSize falls back to
// the webhook configuration; a zero Block claims without blocking.
type ProcessOptions struct {
	// BatchSize caps how many messages are claimed per route.
	BatchSize int64
	// Block is how long the first route may wait for messages. Subsequent
	// routes in the same iteration claim non-blocking.
	Block time.Duration
}

func (w *Webhook) processOptions(opts ProcessOptions) ProcessOptions {
	cfg := w.svc.client.Config().Webhook
	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.BatchSize
	}
	return opts
}

// ProcessOnce runs one dispatcher iteration: for every registered route, in
// registration order, claim up to BatchSize messages and invoke the route's
// handler. A handler returning nil acknowledges the message; a handler
// error (or panic) moves it to the route's dead letter queue with the
// failure recorded, and is never propagated. Errors reading one route are
// logged and the remaining routes still run.
//
// Returns the number of messages processed this iteration.
func (w *Webhook) ProcessOnce(ctx context.Context, opts ProcessOptions) int {
	opts = w.processOptions(opts)

	processed := 0
	block := opts.Block
	for _, route := range w.Routes() {
		msgs, err := route.queue.GetMessages(ctx, opts.BatchSize, block, w.consumerName)
		// Only the first route blocks, so one idle iteration costs at most
		// one block window.
		block = 0

		if err != nil {
			w.logger.Error("error fetching messages for route",
				"path", route.Path,
				"queue", route.QueueName,
				"error", err,
			)
			continue
		}

		for _, msg := range msgs {
			if handlerErr := callHandler(ctx, route.handler, msg); handlerErr != nil {
				w.logger.Error("handler failed, moving message to DLQ",
					"path", route.Path,
					"message_id", msg.ID,
					"error", handlerErr,
				)
				reason := handlerErr.Error()
				if _, err := route.queue.MoveToDLQ(ctx, []string{msg.ID}, reason, nil); err != nil {
					w.logger.Error("failed to move message to DLQ",
						"path", route.Path,
						"message_id", msg.ID,
						"error", err,
					)
				}
			} else {
				if _, err := route.queue.Acknowledge(ctx, []string{msg.ID}); err != nil {
					w.logger.Error("failed to acknowledge message",
						"path", route.Path,
						"message_id", msg.ID,
						"error", err,
					)
				}
			}
			processed++
		}
	}

	return processed
}

// callHandler invokes the handler, converting panics into errors so the
// dispatch loop survives any handler behavior.
func callHandler(ctx context.Context, handler HandlerFunc, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}
