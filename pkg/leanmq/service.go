package leanmq

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// QueueService owns the queue registry: it creates queue pairs, hands out
// handles, and is the scope that ties all backend resources together.
type QueueService struct {
	client     *Client
	ownsClient bool
	logger     *slog.Logger
}

// NewQueueService connects to the backend and returns a service. Call Close
// to release the connection pool.
func NewQueueService(cfg Config) (*QueueService, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &QueueService{
		client:     client,
		ownsClient: true,
		logger:     slog.Default(),
	}, nil
}

// NewQueueServiceWithClient builds a service over an existing gateway. The
// caller keeps ownership: Close does not close the client.
func NewQueueServiceWithClient(client *Client) *QueueService {
	return &QueueService{
		client: client,
		logger: slog.Default(),
	}
}

// Client returns the backend gateway.
func (s *QueueService) Client() *Client { return s.client }

// Ping verifies backend liveness.
func (s *QueueService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases backend resources when the service owns its client
// (NewQueueService); handles obtained from it then fail with ErrClientClosed.
// A service built with NewQueueServiceWithClient leaves the client open.
// Safe to call more than once.
func (s *QueueService) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

func (s *QueueService) registryKey() string {
	return RegistryKey(s.client.Config().Prefix)
}

// CreateQueuePair creates a queue and its dead letter queue sibling, records
// both in the registry, and ensures the consumer group exists anchored at
// the stream's beginning so no messages are skipped after restarts.
// Idempotent: existing queues are reused and their creation time preserved.
func (s *QueueService) CreateQueuePair(ctx context.Context, name string) (*Queue, *Queue, error) {
	if name == "" {
		return nil, nil, &QueueError{Queue: name, Op: "create pair", Err: errInvalidName("empty name")}
	}
	if IsDLQName(name) {
		return nil, nil, &QueueError{Queue: name, Op: "create pair", Err: errInvalidName("dead letter queues have no DLQ of their own")}
	}

	dlqName := DLQName(name)
	prefix := s.client.Config().Prefix
	nowMs := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)

	err := s.client.do(ctx, func(ctx context.Context) error {
		pipe := s.client.Redis().TxPipeline()
		pipe.SAdd(ctx, s.registryKey(), name, dlqName)
		pipe.HSetNX(ctx, MetaKey(prefix, name), "created_at", nowMs)
		pipe.HSetNX(ctx, MetaKey(prefix, name), "is_dlq", "0")
		pipe.HSetNX(ctx, MetaKey(prefix, dlqName), "created_at", nowMs)
		pipe.HSetNX(ctx, MetaKey(prefix, dlqName), "is_dlq", "1")
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		return s.ensureGroup(ctx, StreamKey(prefix, name), GroupName(name))
	})
	if err != nil {
		return nil, nil, &QueueError{Queue: name, Op: "create pair", Err: err}
	}

	return newQueue(s.client, name), newQueue(s.client, dlqName), nil
}

// ensureGroup creates the consumer group if it doesn't exist.
// XGROUP CREATE {stream} {group} "0" MKSTREAM; BUSYGROUP means it already
// exists and is treated as success.
func (s *QueueService) ensureGroup(ctx context.Context, stream, group string) error {
	err := s.client.Redis().XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// GetQueue returns a handle to a registered queue, or ErrQueueNotFound.
func (s *QueueService) GetQueue(ctx context.Context, name string) (*Queue, error) {
	exists, err := s.isRegistered(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &QueueError{Queue: name, Op: "get", Err: ErrQueueNotFound}
	}
	return newQueue(s.client, name), nil
}

// GetDeadLetterQueue returns a handle to the DLQ paired with name, or
// ErrDLQNotFound.
func (s *QueueService) GetDeadLetterQueue(ctx context.Context, name string) (*Queue, error) {
	dlqName := DLQName(name)
	exists, err := s.isRegistered(ctx, dlqName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &QueueError{Queue: name, Op: "get dlq", Err: ErrDLQNotFound}
	}
	return newQueue(s.client, dlqName), nil
}

func (s *QueueService) isRegistered(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.client.do(ctx, func(ctx context.Context) error {
		var err error
		exists, err = s.client.Redis().SIsMember(ctx, s.registryKey(), name).Result()
		return err
	})
	return exists, err
}

// ListQueues returns a snapshot of all registered queues with live counts,
// sorted by name.
func (s *QueueService) ListQueues(ctx context.Context) ([]*QueueInfo, error) {
	names, err := s.queueNames(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*QueueInfo, 0, len(names))
	for _, name := range names {
		info, err := newQueue(s.client, name).Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *QueueService) queueNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.client.do(ctx, func(ctx context.Context) error {
		var err error
		names, err = s.client.Redis().SMembers(ctx, s.registryKey()).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// DeleteQueue unregisters the queue and removes its stream and metadata.
// With alsoDLQ the paired dead letter queue is removed in the same atomic
// pipeline.
func (s *QueueService) DeleteQueue(ctx context.Context, name string, alsoDLQ bool) error {
	exists, err := s.isRegistered(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return &QueueError{Queue: name, Op: "delete", Err: ErrQueueNotFound}
	}

	prefix := s.client.Config().Prefix
	targets := []string{name}
	if alsoDLQ && !IsDLQName(name) {
		targets = append(targets, DLQName(name))
	}

	err = s.client.do(ctx, func(ctx context.Context) error {
		pipe := s.client.Redis().TxPipeline()
		for _, target := range targets {
			pipe.SRem(ctx, s.registryKey(), target)
			pipe.Del(ctx, StreamKey(prefix, target))
			pipe.Del(ctx, MetaKey(prefix, target))
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return &QueueError{Queue: name, Op: "delete", Err: err}
	}
	return nil
}

// Transaction starts an atomic multi-publish batch. Nothing touches the
// backend until Commit.
func (s *QueueService) Transaction() *Transaction {
	return newTransaction(s.client)
}

// WithTransaction runs fn with a fresh transaction and commits it iff fn
// returns nil. A non-nil error from fn discards the batch untouched.
func (s *QueueService) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	tx := s.Transaction()
	if err := fn(tx); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit(ctx)
}

type errInvalidName string

func (e errInvalidName) Error() string {
	return "leanmq: invalid queue name: " + string(e)
}
