// Package kafka publishes case events to a kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"trafficSOS/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Broker writes one message per case event. The message key is the accident
// id so every event of one case lands on the same partition in order.
type Broker struct {
	writer       messageWriter
	writeTimeout time.Duration
}

func NewBroker(brokers []string, topic string) (*Broker, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka: brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Broker{writer: w, writeTimeout: 5 * time.Second}, nil
}

func (b *Broker) Name() string { return "kafka" }

func (b *Broker) Publish(ctx context.Context, ev domain.CaseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()

	return b.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(ev.Envelope.Payload.AccidentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(ev.Topic)},
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "version", Value: []byte(strconv.FormatInt(ev.Version, 10))},
		},
	})
}

func (b *Broker) Close() error {
	if b == nil || b.writer == nil {
		return nil
	}
	return b.writer.Close()
}
