package fanout

import (
	"context"
	"time"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

// MemoryQueue is a bounded in-process outbox. Enqueue never blocks the caller.
type MemoryQueue struct {
	ch chan domain.CaseEvent
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{ch: make(chan domain.CaseEvent, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, ev domain.CaseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- ev:
		return nil
	default:
		return e.Wrap("memory outbox", e.ErrQueueFull)
	}
}

// Dequeue waits up to timeout and returns e.ErrQueueEmpty when nothing arrived.
// The event leaves the channel at once; Ack has nothing to release.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-q.ch:
		return Message{Event: ev}, nil
	case <-timer.C:
		return Message{}, e.ErrQueueEmpty
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, Message) error {
	return nil
}

// Requeue puts ev back at the tail. It ignores ctx cancellation so a
// dispatcher shutting down can still return what it holds.
func (q *MemoryQueue) Requeue(_ context.Context, _ Message, ev domain.CaseEvent) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		return e.Wrap("memory outbox requeue", e.ErrQueueFull)
	}
}

func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
