package leanmq

import (
	"context"
	"errors"
	"time"
)

// Transaction accumulates publish intents and submits them to the backend in
// a single atomic batch. Until Commit, nothing is externally visible; either
// every publish in the batch lands or none does.
//
// Reads cannot participate, and queue creation is not transactional: create
// queues before opening the transaction.
type Transaction struct {
	client  *Client
	intents []txIntent
	done    bool
}

type txIntent struct {
	queue  *Queue
	fields map[string]any
}

func newTransaction(client *Client) *Transaction {
	return &Transaction{client: client}
}

// Send appends a publish intent. The backend is not touched; the message's
// created_at is captured now, at intent time.
func (t *Transaction) Send(queue *Queue, body map[string]any, ttl time.Duration) error {
	if t.done {
		return &TransactionError{Err: errors.New("transaction already finished")}
	}
	if queue == nil {
		return &TransactionError{Err: errors.New("nil queue")}
	}

	now := time.Now().UTC()
	msg := &Message{
		Body:      body,
		CreatedAt: now,
	}
	if ttl > 0 {
		msg.ExpiresAt = now.Add(ttl)
	}

	fields, err := msg.ToStreamFields()
	if err != nil {
		return &TransactionError{Err: err}
	}

	t.intents = append(t.intents, txIntent{queue: queue, fields: fields})
	return nil
}

// Len returns the number of accumulated intents.
func (t *Transaction) Len() int {
	return len(t.intents)
}

// Commit submits the batch atomically. On failure no publish is visible and
// a TransactionError is returned. The transaction cannot be reused.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return &TransactionError{Err: errors.New("transaction already finished")}
	}
	t.done = true

	if len(t.intents) == 0 {
		return nil
	}

	err := t.client.do(ctx, func(ctx context.Context) error {
		pipe := t.client.Redis().TxPipeline()
		for _, intent := range t.intents {
			pipe.XAdd(ctx, intent.queue.xAddArgs(intent.fields))
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return &TransactionError{Err: err}
	}
	return nil
}

// Discard drops the accumulated intents without touching the backend.
func (t *Transaction) Discard() {
	t.done = true
	t.intents = nil
}
