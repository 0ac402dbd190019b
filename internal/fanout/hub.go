package fanout

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"trafficSOS/internal/domain"
)

// Hub is the in-process broker. Subscribers receive every event whose topic
// starts with their prefix. A full subscriber buffer drops the event for that
// subscriber only.
type Hub struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*Subscription
	dropped atomic.Uint64
}

type Subscription struct {
	id     uint64
	prefix string
	ch     chan domain.CaseEvent
	hub    *Hub
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription)}
}

func (h *Hub) Name() string { return "memory" }

func (h *Hub) Subscribe(prefix string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription{id: h.nextID, prefix: prefix, ch: make(chan domain.CaseEvent, buffer), hub: h}
	h.subs[s.id] = s
	return s
}

func (h *Hub) Publish(ctx context.Context, ev domain.CaseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if !strings.HasPrefix(ev.Topic, s.prefix) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers reports the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *Subscription) Events() <-chan domain.CaseEvent { return s.ch }

// Close detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}
