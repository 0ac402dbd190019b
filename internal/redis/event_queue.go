package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trafficSOS/internal/domain"
	"trafficSOS/internal/fanout"
	"trafficSOS/pkg/e"

	"github.com/redis/go-redis/v9"
)

// EventQueue is a durable outbox backed by a redis list. Enqueue pushes on
// the left of <key>. Dequeue moves the oldest entry into <key>:processing,
// where it stays until the dispatcher acks or requeues it, so an event taken
// by a process that dies is still in redis.
type EventQueue struct {
	client     *redis.Client
	key        string
	processing string
}

func NewEventQueue(client *redis.Client, key string) *EventQueue {
	return &EventQueue{client: client, key: key, processing: key + ":processing"}
}

func (q *EventQueue) Enqueue(ctx context.Context, ev domain.CaseEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Dequeue blocks up to timeout and returns e.ErrQueueEmpty when nothing arrived.
func (q *EventQueue) Dequeue(ctx context.Context, timeout time.Duration) (fanout.Message, error) {
	raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fanout.Message{}, e.ErrQueueEmpty
		}
		return fanout.Message{}, err
	}

	var ev domain.CaseEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		// Undecodable entries would come back on every recovery.
		_ = q.client.LRem(context.WithoutCancel(ctx), q.processing, 1, raw).Err()
		return fanout.Message{}, fmt.Errorf("decode queued event: %w", err)
	}
	return fanout.Message{Event: ev, Receipt: raw}, nil
}

// Ack drops the in-flight copy.
func (q *EventQueue) Ack(ctx context.Context, msg fanout.Message) error {
	return q.client.LRem(ctx, q.processing, 1, msg.Receipt).Err()
}

// Requeue pushes ev back on the queue and drops the in-flight copy in one
// transaction.
func (q *EventQueue) Requeue(ctx context.Context, msg fanout.Message, ev domain.CaseEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.key, b)
		pipe.LRem(ctx, q.processing, 1, msg.Receipt)
		return nil
	})
	return err
}

// Recover moves every in-flight entry back to the head of the queue and
// returns how many it moved. It runs before the dispatcher starts; entries
// are delivered again, so consumers see at-least-once delivery.
func (q *EventQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *EventQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
