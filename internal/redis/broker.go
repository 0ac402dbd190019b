package redis

import (
	"context"
	"encoding/json"

	"trafficSOS/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Broker publishes case events on redis pub/sub. The channel is
// <prefix>/<event topic>, so subscribers can PSUBSCRIBE "<prefix>/case/*".
type Broker struct {
	client *redis.Client
	prefix string
}

func NewBroker(client *redis.Client, prefix string) *Broker {
	return &Broker{client: client, prefix: prefix}
}

func (b *Broker) Name() string { return "redis" }

func (b *Broker) Channel(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + "/" + topic
}

func (b *Broker) Publish(ctx context.Context, ev domain.CaseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.Channel(ev.Topic), payload).Err()
}
