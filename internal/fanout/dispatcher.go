// Package fanout drains the case event outbox and delivers each event to the
// configured brokers and, for new cases, to the HTTP collaborators.
package fanout

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/mock.go

// shardBuffer bounds how far the reader runs ahead of one busy worker.
const shardBuffer = 8

// Message is one dequeued event. Receipt identifies the in-flight copy held
// by the source until Ack or Requeue.
type Message struct {
	Event   domain.CaseEvent
	Receipt string
}

// Source hands out events and keeps each one until the dispatcher settles it.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (Message, error)
	Ack(ctx context.Context, msg Message) error
	Requeue(ctx context.Context, msg Message, ev domain.CaseEvent) error
}

type Broker interface {
	Name() string
	Publish(ctx context.Context, ev domain.CaseEvent) error
}

type Collaborator interface {
	Name() string
	Notify(ctx context.Context, env domain.Envelope[domain.CaseRecord]) error
}

type DeliveryRecorder interface {
	Delivered(sink string)
	DeliveryFailed(sink string)
}

type nopDeliveries struct{}

func (nopDeliveries) Delivered(string)      {}
func (nopDeliveries) DeliveryFailed(string) {}

// Config tunes delivery. DeliveryTimeout bounds one event end to end and
// keeps running after shutdown starts, so it must cover the broker retries.
type Config struct {
	Workers         int
	MaxAttempts     int
	MaxRedeliveries int
	RetryBackoff    time.Duration
	SinkTimeout     time.Duration
	PollTimeout     time.Duration
	DeliveryTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         4,
		MaxAttempts:     3,
		MaxRedeliveries: 5,
		RetryBackoff:    500 * time.Millisecond,
		SinkTimeout:     3 * time.Second,
		PollTimeout:     5 * time.Second,
		DeliveryTimeout: 15 * time.Second,
	}
}

type Dispatcher struct {
	logger        *slog.Logger
	cfg           Config
	source        Source
	brokers       []Broker
	collaborators []Collaborator
	metrics       DeliveryRecorder
	tracer        trace.Tracer
}

type Option func(*Dispatcher)

func WithCollaborators(c ...Collaborator) Option {
	return func(d *Dispatcher) { d.collaborators = append(d.collaborators, c...) }
}

func WithDeliveryRecorder(r DeliveryRecorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.metrics = r
		}
	}
}

func NewDispatcher(logger *slog.Logger, cfg Config, source Source, brokers []Broker, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = def.SinkTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.MaxRedeliveries <= 0 {
		cfg.MaxRedeliveries = def.MaxRedeliveries
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}

	d := &Dispatcher{
		logger:  logger,
		cfg:     cfg,
		source:  source,
		brokers: brokers,
		metrics: nopDeliveries{},
		tracer:  otel.Tracer("trafficSOS/internal/fanout"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run reads the source and routes every event to a worker chosen by its
// accident id, so events of one case are delivered one at a time in queue
// order. After ctx is cancelled the reader stops, in-flight events finish
// under DeliveryTimeout and Run returns once every worker is idle.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher STARTED",
		slog.Int("workers", d.cfg.Workers),
		slog.Int("brokers", len(d.brokers)),
		slog.Int("collaborators", len(d.collaborators)),
	)

	shards := make([]chan Message, d.cfg.Workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan Message, shardBuffer)
		wg.Add(1)
		go func(id int, in <-chan Message) {
			defer wg.Done()
			d.worker(ctx, id, in)
		}(i, shards[i])
	}

	d.read(ctx, shards)
	for _, ch := range shards {
		close(ch)
	}
	wg.Wait()

	d.logger.Info("dispatcher STOPPED", slog.String("reason", context.Cause(ctx).Error()))
}

func (d *Dispatcher) read(ctx context.Context, shards []chan Message) {
	for ctx.Err() == nil {
		msg, err := d.source.Dequeue(ctx, d.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, e.ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("dequeue failed", slog.Any("error", err))
			if !sleep(ctx, 500*time.Millisecond) {
				return
			}
			continue
		}

		// Workers drain their channel until it is closed, so this send
		// always completes.
		shards[shardOf(msg.Event.Envelope.Payload.AccidentID, len(shards))] <- msg
	}
}

func shardOf(accidentID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accidentID))
	return int(h.Sum32() % uint32(n))
}

func (d *Dispatcher) worker(ctx context.Context, id int, in <-chan Message) {
	log := d.logger.With(slog.Int("worker", id))
	for msg := range in {
		d.settle(ctx, log, msg)
	}
}

// settle delivers one message and then acks it, or puts it back for the
// brokers that failed. Shutdown does not interrupt a delivery in progress.
func (d *Dispatcher) settle(ctx context.Context, log *slog.Logger, msg Message) {
	base := context.WithoutCancel(ctx)

	deliverCtx, cancel := context.WithTimeout(base, d.cfg.DeliveryTimeout)
	failed := d.Deliver(deliverCtx, msg.Event)
	cancel()

	settleCtx, cancel := context.WithTimeout(base, d.cfg.SinkTimeout)
	defer cancel()

	ev := msg.Event
	if len(failed) == 0 {
		if err := d.source.Ack(settleCtx, msg); err != nil {
			log.Error("ack failed", slog.String("topic", ev.Topic), slog.Any("error", err))
		}
		return
	}

	attempt := 1
	if ev.Redelivery != nil {
		attempt = ev.Redelivery.Attempt + 1
	}
	if attempt > d.cfg.MaxRedeliveries {
		log.Error("event dropped after redeliveries",
			slog.String("topic", ev.Topic),
			slog.Int64("version", ev.Version),
			slog.Any("brokers", failed),
		)
		if err := d.source.Ack(settleCtx, msg); err != nil {
			log.Error("ack failed", slog.String("topic", ev.Topic), slog.Any("error", err))
		}
		return
	}

	ev.Redelivery = &domain.Redelivery{Attempt: attempt, Brokers: failed}
	if err := d.source.Requeue(settleCtx, msg, ev); err != nil {
		log.Error("requeue failed",
			slog.String("topic", ev.Topic),
			slog.Any("brokers", failed),
			slog.Any("error", err),
		)
		return
	}
	log.Warn("event requeued",
		slog.String("topic", ev.Topic),
		slog.Int("attempt", attempt),
		slog.Any("brokers", failed),
	)
}

// Deliver publishes ev to every broker with bounded retry and returns the
// names of the brokers that never accepted it. Collaborators are called once
// for CASE_CREATED events. A redelivered event only goes to the brokers it
// names and skips the collaborators.
func (d *Dispatcher) Deliver(ctx context.Context, ev domain.CaseEvent) []string {
	ctx, span := d.tracer.Start(ctx, "fanout.Deliver", trace.WithAttributes(
		attribute.String("sos.topic", ev.Topic),
		attribute.String("sos.kind", string(ev.Kind)),
		attribute.Int64("sos.version", ev.Version),
	))
	defer span.End()

	var failed []string
	for _, b := range d.brokers {
		if ev.Redelivery != nil && !slices.Contains(ev.Redelivery.Brokers, b.Name()) {
			continue
		}
		if err := d.publishWithRetry(ctx, b, ev); err != nil {
			failed = append(failed, b.Name())
			d.metrics.DeliveryFailed(b.Name())
			continue
		}
		d.metrics.Delivered(b.Name())
	}
	if len(failed) > 0 {
		span.SetStatus(codes.Error, "broker delivery failed")
	}

	if ev.Kind != domain.EventCaseCreated || ev.Redelivery != nil {
		return failed
	}
	for _, c := range d.collaborators {
		d.notify(ctx, c, ev)
	}
	return failed
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, b Broker, ev domain.CaseEvent) error {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pubCtx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
		err = b.Publish(pubCtx, ev)
		cancel()
		if err == nil {
			return nil
		}

		d.logger.Warn("publish failed",
			slog.String("broker", b.Name()),
			slog.String("topic", ev.Topic),
			slog.Int("attempt", attempt),
			slog.String("reason", err.Error()),
		)

		if attempt < d.cfg.MaxAttempts && !sleep(ctx, time.Duration(attempt)*d.cfg.RetryBackoff) {
			return ctx.Err()
		}
	}

	d.logger.Error("broker retries exhausted",
		slog.String("broker", b.Name()),
		slog.String("topic", ev.Topic),
		slog.Any("error", err),
	)
	return err
}

func (d *Dispatcher) notify(ctx context.Context, c Collaborator, ev domain.CaseEvent) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
	defer cancel()

	if err := c.Notify(callCtx, ev.Envelope); err != nil {
		d.metrics.DeliveryFailed(c.Name())
		d.logger.Warn("collaborator call failed",
			slog.String("collaborator", c.Name()),
			slog.String("accident_id", ev.Envelope.Payload.AccidentID),
			slog.String("reason", err.Error()),
		)
		return
	}
	d.metrics.Delivered(c.Name())
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
