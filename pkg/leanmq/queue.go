package leanmq

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a handle to a single stream. Handles are cheap; they carry no
// state beyond the key names and can be recreated freely.
type Queue struct {
	client *Client
	name   string // logical name, prefix not included
	stream string // full stream key
	group  string // consumer group; empty for DLQs
	isDLQ  bool
	logger *slog.Logger
}

// QueueInfo is a point-in-time snapshot of a queue. It may be stale by the
// time the caller reads it.
type QueueInfo struct {
	Name          string
	IsDLQ         bool
	MessageCount  int64
	ConsumerGroup string
	PendingCount  int64
	CreatedAt     time.Time
	FirstID       string
	LastID        string
}

func newQueue(client *Client, name string) *Queue {
	prefix := client.Config().Prefix
	isDLQ := IsDLQName(name)

	group := ""
	if !isDLQ {
		group = GroupName(name)
	}

	return &Queue{
		client: client,
		name:   name,
		stream: StreamKey(prefix, name),
		group:  group,
		isDLQ:  isDLQ,
		logger: slog.Default(),
	}
}

// Name returns the logical queue name.
func (q *Queue) Name() string { return q.name }

// IsDLQ reports whether this handle points at a dead letter queue.
func (q *Queue) IsDLQ() bool { return q.isDLQ }

// dlqSibling returns a handle to this queue's paired dead letter queue.
func (q *Queue) dlqSibling() *Queue {
	return newQueue(q.client, DLQName(q.name))
}

// mainSibling returns a handle to the non-DLQ queue this DLQ is paired with.
func (q *Queue) mainSibling() *Queue {
	return newQueue(q.client, strings.TrimSuffix(q.name, DLQSuffix))
}

// Publish appends a message to the queue. ttl of zero means no expiration.
// Returns the backend-assigned entry id; the message is durable once the id
// is returned.
func (q *Queue) Publish(ctx context.Context, body map[string]any, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	msg := &Message{
		Body:      body,
		CreatedAt: now,
	}
	if ttl > 0 {
		msg.ExpiresAt = now.Add(ttl)
	}
	return q.publish(ctx, msg)
}

func (q *Queue) publish(ctx context.Context, msg *Message) (string, error) {
	fields, err := msg.ToStreamFields()
	if err != nil {
		return "", err
	}

	q.checkBackPressure(ctx)

	var id string
	err = q.client.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = q.client.Redis().XAdd(ctx, q.xAddArgs(fields)).Result()
		return err
	})
	if err != nil {
		return "", q.wrapErr("publish", err)
	}
	return id, nil
}

// xAddArgs builds XADD arguments honoring the configured stream cap.
func (q *Queue) xAddArgs(fields map[string]any) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: q.stream,
		ID:     "*",
		Values: fields,
	}
	if maxLen := q.maxLen(); maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return args
}

func (q *Queue) maxLen() int64 {
	streams := q.client.Config().Streams
	if q.isDLQ {
		return streams.DLQMaxLen
	}
	return streams.MaxLen
}

// checkBackPressure logs a warning when the stream exceeds 80% of its cap.
func (q *Queue) checkBackPressure(ctx context.Context) {
	maxLen := q.maxLen()
	if maxLen <= 0 {
		return
	}

	length, err := q.client.Redis().XLen(ctx, q.stream).Result()
	if err != nil {
		return
	}

	threshold := int64(float64(maxLen) * 0.8)
	if length > threshold {
		q.logger.Warn("stream approaching trim threshold",
			"stream", q.stream,
			"current_len", length,
			"max_len", maxLen,
			"threshold", threshold,
		)
	}
}

// GetMessages claims up to count messages for the given consumer.
//
// On a grouped queue, entries left pending longer than the reclaim-idle
// threshold are claimed first (from any consumer, so crashed workers are
// recovered), then new entries are read through the group; block > 0 waits
// up to that long when the queue is empty. On a DLQ there is no claim
// semantics: entries are read from the stream head in insertion order.
//
// The returned messages' DeliveryCount reflects this delivery.
func (q *Queue) GetMessages(ctx context.Context, count int64, block time.Duration, consumer string) ([]*Message, error) {
	if count <= 0 {
		return nil, nil
	}
	if consumer == "" {
		consumer = q.client.Config().Queue.DefaultConsumer
	}

	if q.group == "" {
		return q.readHead(ctx, count)
	}

	msgs, err := q.reclaimIdle(ctx, count, consumer)
	if err != nil {
		return nil, err
	}

	remaining := count - int64(len(msgs))
	if remaining <= 0 {
		return msgs, nil
	}

	blockArg := block
	if blockArg <= 0 {
		blockArg = -1 // no BLOCK argument: return immediately
	}

	var streams []redis.XStream
	err = q.client.do(ctx, func(ctx context.Context) error {
		var err error
		streams, err = q.client.Redis().XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    remaining,
			Block:    blockArg,
		}).Result()
		if errors.Is(err, redis.Nil) {
			streams = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, q.wrapErr("get messages", err)
	}

	for _, xs := range streams {
		for _, entry := range xs.Messages {
			msg, err := MessageFromStreamFields(entry.ID, entry.Values)
			if err != nil {
				q.logger.Warn("skipping unparseable entry", "queue", q.name, "id", entry.ID, "error", err)
				continue
			}
			msg.DeliveryCount++
			msgs = append(msgs, msg)
		}
	}

	return msgs, nil
}

// reclaimIdle transfers long-pending entries to this consumer via XAUTOCLAIM.
func (q *Queue) reclaimIdle(ctx context.Context, count int64, consumer string) ([]*Message, error) {
	idle := time.Duration(q.client.Config().Queue.ReclaimIdleMs) * time.Millisecond

	var claimed []redis.XMessage
	err := q.client.do(ctx, func(ctx context.Context) error {
		var err error
		claimed, _, err = q.client.Redis().XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: consumer,
			MinIdle:  idle,
			Start:    "0-0",
			Count:    count,
		}).Result()
		if errors.Is(err, redis.Nil) {
			claimed = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, q.wrapErr("reclaim", err)
	}

	msgs := make([]*Message, 0, len(claimed))
	for _, entry := range claimed {
		if len(entry.Values) == 0 {
			// Trimmed while pending. Ack so the PEL does not grow forever.
			q.client.Redis().XAck(ctx, q.stream, q.group, entry.ID)
			continue
		}
		msg, err := MessageFromStreamFields(entry.ID, entry.Values)
		if err != nil {
			q.logger.Warn("skipping unparseable entry", "queue", q.name, "id", entry.ID, "error", err)
			continue
		}
		msg.DeliveryCount++
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// readHead reads entries without claim semantics (DLQ introspection).
func (q *Queue) readHead(ctx context.Context, count int64) ([]*Message, error) {
	var entries []redis.XMessage
	err := q.client.do(ctx, func(ctx context.Context) error {
		var err error
		entries, err = q.client.Redis().XRangeN(ctx, q.stream, "-", "+", count).Result()
		return err
	})
	if err != nil {
		return nil, q.wrapErr("get messages", err)
	}

	msgs := make([]*Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := MessageFromStreamFields(entry.ID, entry.Values)
		if err != nil {
			q.logger.Warn("skipping unparseable entry", "queue", q.name, "id", entry.ID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Acknowledge marks ids as processed within the consumer group. Ids that are
// not pending are ignored. Returns the count actually acknowledged.
func (q *Queue) Acknowledge(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 || q.group == "" {
		return 0, nil
	}

	var acked int64
	err := q.client.do(ctx, func(ctx context.Context) error {
		var err error
		acked, err = q.client.Redis().XAck(ctx, q.stream, q.group, ids...).Result()
		return err
	})
	if err != nil {
		return 0, q.wrapErr("acknowledge", err)
	}
	return acked, nil
}

// Delete removes entries from the stream entirely. Pending state is not
// touched: acknowledge first for clean pending accounting. Returns the count
// actually removed.
func (q *Queue) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var removed int64
	err := q.client.do(ctx, func(ctx context.Context) error {
		var err error
		removed, err = q.client.Redis().XDel(ctx, q.stream, ids...).Result()
		return err
	})
	if err != nil {
		return 0, q.wrapErr("delete", err)
	}
	return removed, nil
}

// MoveToDLQ relocates ids to target (paired DLQ when nil), annotating each
// body with the failure reason and source queue. The relocation is a move:
// append to the DLQ, acknowledge, and delete from this queue in one atomic
// pipeline. Ids already gone from the stream are skipped silently. Returns
// the count successfully relocated.
func (q *Queue) MoveToDLQ(ctx context.Context, ids []string, reason string, target *Queue) (int, error) {
	if target == nil {
		if q.isDLQ {
			return 0, &QueueError{Queue: q.name, Op: "move to dlq", Err: ErrDLQNotFound}
		}
		target = q.dlqSibling()
	}
	return q.move(ctx, ids, target, func(msg *Message) {
		msg.Error = truncateError(reason)
		msg.SourceQueue = q.name
		msg.MovedAt = time.Now().UTC()
		msg.DeliveryCount++
	})
}

// Requeue moves ids from this DLQ back to target (the paired non-DLQ queue
// when nil), stripping the failure annotations. Only defined on a DLQ.
func (q *Queue) Requeue(ctx context.Context, ids []string, target *Queue) (int, error) {
	if !q.isDLQ {
		return 0, &QueueError{Queue: q.name, Op: "requeue", Err: ErrNotDLQ}
	}
	if target == nil {
		target = q.mainSibling()
	}

	registered, err := q.client.Redis().SIsMember(ctx, RegistryKey(q.client.Config().Prefix), target.name).Result()
	if err != nil {
		return 0, q.wrapErr("requeue", err)
	}
	if !registered {
		return 0, &QueueError{Queue: target.name, Op: "requeue", Err: ErrQueueNotFound}
	}
	return q.move(ctx, ids, target, func(msg *Message) {
		msg.Error = ""
		msg.SourceQueue = ""
		msg.MovedAt = time.Time{}
	})
}

// move reads each id, applies annotate, and atomically appends to target
// while acknowledging and deleting here.
func (q *Queue) move(ctx context.Context, ids []string, target *Queue, annotate func(*Message)) (int, error) {
	type relocation struct {
		id     string
		fields map[string]any
	}

	relocations := make([]relocation, 0, len(ids))
	for _, id := range ids {
		var entries []redis.XMessage
		err := q.client.do(ctx, func(ctx context.Context) error {
			var err error
			entries, err = q.client.Redis().XRangeN(ctx, q.stream, id, id, 1).Result()
			return err
		})
		if err != nil {
			return 0, q.wrapErr("move", err)
		}
		if len(entries) == 0 || len(entries[0].Values) == 0 {
			continue // already gone
		}

		msg, err := MessageFromStreamFields(id, entries[0].Values)
		if err != nil {
			q.logger.Warn("skipping unparseable entry", "queue", q.name, "id", id, "error", err)
			continue
		}
		annotate(msg)

		fields, err := msg.ToStreamFields()
		if err != nil {
			q.logger.Warn("skipping unserializable entry", "queue", q.name, "id", id, "error", err)
			continue
		}
		relocations = append(relocations, relocation{id: id, fields: fields})
	}

	if len(relocations) == 0 {
		return 0, nil
	}

	err := q.client.do(ctx, func(ctx context.Context) error {
		pipe := q.client.Redis().TxPipeline()
		for _, r := range relocations {
			pipe.XAdd(ctx, target.xAddArgs(r.fields))
			if q.group != "" {
				pipe.XAck(ctx, q.stream, q.group, r.id)
			}
			pipe.XDel(ctx, q.stream, r.id)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return 0, q.wrapErr("move", err)
	}

	return len(relocations), nil
}

// Purge removes all messages and clears pending state, leaving the queue and
// its consumer group in place. Returns the number of entries removed.
func (q *Queue) Purge(ctx context.Context) (int64, error) {
	var removed int64
	err := q.client.do(ctx, func(ctx context.Context) error {
		length, err := q.client.Redis().XLen(ctx, q.stream).Result()
		if err != nil {
			return err
		}

		if q.group != "" {
			if err := q.ackAllPending(ctx); err != nil {
				return err
			}
		}

		if err := q.client.Redis().XTrimMaxLen(ctx, q.stream, 0).Err(); err != nil {
			return err
		}

		removed = length
		return nil
	})
	if err != nil {
		return 0, q.wrapErr("purge", err)
	}
	return removed, nil
}

// ackAllPending drains the pending entry list in scan-batch chunks.
func (q *Queue) ackAllPending(ctx context.Context) error {
	batch := q.client.Config().Queue.ScanBatchSize
	for {
		pending, err := q.client.Redis().XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: q.stream,
			Group:  q.group,
			Start:  "-",
			End:    "+",
			Count:  batch,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
		}
		if err := q.client.Redis().XAck(ctx, q.stream, q.group, ids...).Err(); err != nil {
			return err
		}
		if int64(len(pending)) < batch {
			return nil
		}
	}
}

// Info returns a read-only snapshot of the queue.
func (q *Queue) Info(ctx context.Context) (*QueueInfo, error) {
	info := &QueueInfo{
		Name:          q.name,
		IsDLQ:         q.isDLQ,
		ConsumerGroup: q.group,
	}

	err := q.client.do(ctx, func(ctx context.Context) error {
		length, err := q.client.Redis().XLen(ctx, q.stream).Result()
		if err != nil {
			return err
		}
		info.MessageCount = length

		if q.group != "" {
			pending, err := q.client.Redis().XPending(ctx, q.stream, q.group).Result()
			if err == nil {
				info.PendingCount = pending.Count
			} else if !isGroupMissing(err) && !errors.Is(err, redis.Nil) {
				return err
			}
		}

		if first, err := q.client.Redis().XRangeN(ctx, q.stream, "-", "+", 1).Result(); err == nil && len(first) > 0 {
			info.FirstID = first[0].ID
		}
		if last, err := q.client.Redis().XRevRangeN(ctx, q.stream, "+", "-", 1).Result(); err == nil && len(last) > 0 {
			info.LastID = last[0].ID
		}

		meta, err := q.client.Redis().HGetAll(ctx, MetaKey(q.client.Config().Prefix, q.name)).Result()
		if err == nil {
			if ms, ok, err := msField(toAnyMap(meta), "created_at"); err == nil && ok {
				info.CreatedAt = time.UnixMilli(ms).UTC()
			}
		}
		return nil
	})
	if err != nil {
		return nil, q.wrapErr("info", err)
	}
	return info, nil
}

func (q *Queue) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClientClosed) || errors.Is(err, ErrConnection) {
		return err
	}
	if isGroupMissing(err) {
		return &QueueError{Queue: q.name, Op: op, Err: ErrQueueNotFound}
	}
	return &QueueError{Queue: q.name, Op: op, Err: err}
}

// isGroupMissing detects NOGROUP replies: the stream or group is absent.
func isGroupMissing(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

// truncateError bounds recorded failure reasons.
func truncateError(reason string) string {
	if len(reason) > 1000 {
		return reason[:1000]
	}
	return reason
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
