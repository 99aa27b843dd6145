package leanmq

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SweepExpired scans every registered queue and removes messages whose TTL
// has elapsed. Expired entries are acknowledged (when the queue has a
// consumer group) and deleted without delivery. Returns the total removed.
//
// Cost is O(N) in total queue size; run it periodically out-of-band. Safe to
// run concurrently with producers and consumers: deleting an id that is
// already gone is a no-op, so races are benign.
func (s *QueueService) SweepExpired(ctx context.Context) (int, error) {
	names, err := s.queueNames(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	total := 0
	for _, name := range names {
		removed, err := s.sweepQueue(ctx, newQueue(s.client, name), now)
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}

// sweepQueue walks one stream in scan-batch chunks, collecting expired ids.
func (s *QueueService) sweepQueue(ctx context.Context, q *Queue, now time.Time) (int, error) {
	batch := s.client.Config().Queue.ScanBatchSize
	removed := 0
	cursor := "-"

	for {
		var entries []redis.XMessage
		err := s.client.do(ctx, func(ctx context.Context) error {
			var err error
			entries, err = s.client.Redis().XRangeN(ctx, q.stream, cursor, "+", batch).Result()
			return err
		})
		if err != nil {
			return removed, q.wrapErr("sweep", err)
		}
		if len(entries) == 0 {
			return removed, nil
		}

		expired := make([]string, 0, len(entries))
		for _, entry := range entries {
			msg, err := MessageFromStreamFields(entry.ID, entry.Values)
			if err != nil {
				continue
			}
			if msg.Expired(now) {
				expired = append(expired, entry.ID)
			}
		}

		if len(expired) > 0 {
			var deleted int64
			err := s.client.do(ctx, func(ctx context.Context) error {
				pipe := s.client.Redis().TxPipeline()
				if q.group != "" {
					pipe.XAck(ctx, q.stream, q.group, expired...)
				}
				del := pipe.XDel(ctx, q.stream, expired...)
				_, err := pipe.Exec(ctx)
				deleted = del.Val()
				return err
			})
			if err != nil {
				return removed, q.wrapErr("sweep", err)
			}
			removed += int(deleted)
		}

		if int64(len(entries)) < batch {
			return removed, nil
		}
		cursor = nextStreamID(entries[len(entries)-1].ID)
	}
}

// nextStreamID returns the smallest id strictly greater than id, so a range
// scan can resume without re-reading the last entry.
func nextStreamID(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '-' {
			ms := id[:i]
			seq, err := strconv.ParseUint(id[i+1:], 10, 64)
			if err != nil {
				break
			}
			return ms + "-" + strconv.FormatUint(seq+1, 10)
		}
	}
	return id
}
