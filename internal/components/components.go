package components

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"trafficSOS/internal/api"
	"trafficSOS/internal/api/handlers/http/admin"
	"trafficSOS/internal/api/handlers/http/sos"
	"trafficSOS/internal/api/handlers/http/system"
	"trafficSOS/internal/auth"
	"trafficSOS/internal/config"
	"trafficSOS/internal/fanout"
	"trafficSOS/internal/kafka"
	"trafficSOS/internal/observability"
	"trafficSOS/internal/redis"
	"trafficSOS/internal/revalidator"
	"trafficSOS/internal/service"
	"trafficSOS/internal/storage/memory"
	"trafficSOS/internal/storage/postgres"
	"trafficSOS/pkg/logger"
)

type outbox interface {
	service.Outbox
	fanout.Source
}

type Components struct {
	logger     *slog.Logger
	HttpServer *api.Server
	Lifecycle  *service.LifecycleManager
	Dispatcher *fanout.Dispatcher
	Postgres   *postgres.Postgres
	Redis      *redis.Redis
	Kafka      *kafka.Broker

	shutdownTracing func(context.Context) error
}

func InitComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	c := &Components{logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.ShutdownAll()
		}
	}()

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	c.shutdownTracing = shutdown

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	if cfg.UsesRedis() {
		logger.Info("Initializing Redis")
		if c.Redis, err = redis.NewRedis(ctx, cfg.Redis, logger); err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
	}

	store, stats, err := c.initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var queue outbox
	switch cfg.Fanout.Outbox {
	case config.OutboxRedis:
		q := redis.NewEventQueue(c.Redis.Client, cfg.Redis.QueueKey)
		moved, err := q.Recover(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover in-flight events: %w", err)
		}
		if moved > 0 {
			logger.Warn("in-flight events returned to the outbox", slog.Int("count", moved))
		}
		queue = q
	default:
		queue = fanout.NewMemoryQueue(cfg.Fanout.QueueSize)
	}

	hub := fanout.NewHub()
	brokers, err := c.initBrokers(cfg, hub)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenProviderFromConfig(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to init token provider: %w", err)
	}
	policy, err := auth.NewPolicy(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to init policy: %w", err)
	}

	c.Lifecycle = service.NewLifecycleManager(logger,
		service.LifecycleConfig{
			Env:           cfg.Env,
			Retention:     cfg.Lifecycle.Retention,
			SweepInterval: cfg.Lifecycle.SweepInterval,
		},
		store, queue,
		revalidator.New(revalidator.Thresholds{
			Stage1GForce:     cfg.Revalidation.Stage1GForce,
			HighGAutoConfirm: cfg.Revalidation.HighGAutoConfirm,
			MLConfidence:     cfg.Revalidation.MLConfidence,
			LowSpeedBypass:   cfg.Revalidation.LowSpeedBypass,
			SpeedDrop:        cfg.Revalidation.SpeedDrop,
		}),
		service.WithAuthorizer(policy),
		service.WithRecorder(metrics),
	)

	c.Dispatcher = fanout.NewDispatcher(logger,
		fanout.Config{
			Workers:         cfg.Fanout.Workers,
			MaxAttempts:     cfg.Fanout.MaxAttempts,
			MaxRedeliveries: cfg.Fanout.MaxRedeliveries,
			RetryBackoff:    cfg.Fanout.RetryBackoff,
			SinkTimeout:     cfg.Fanout.SinkTimeout,
			PollTimeout:     cfg.Fanout.PollTimeout,
			DeliveryTimeout: cfg.Fanout.DeliveryTimeout,
		},
		queue, brokers,
		fanout.WithCollaborators(collaborators(cfg.Fanout)...),
		fanout.WithDeliveryRecorder(metrics),
	)

	ready := map[string]system.Pinger{"store": c.Lifecycle}
	if c.Redis != nil {
		ready["redis"] = c.Redis
	}

	c.HttpServer = api.NewServer(ctx, cfg, logger, api.Handlers{
		SOS:      sos.NewHandler(logger, cfg.Env, c.Lifecycle, hub),
		Admin:    admin.NewHandler(logger, service.NewStatsService(stats, policy)),
		System:   system.NewHandler(logger, ready),
		Verifier: tokens,
		Metrics:  metrics,
	})
	logger.Info("Initialized server")

	ok = true
	return c, nil
}

// initStore returns the case store and the stats repository behind it. Stats
// bypass the read cache.
func (c *Components) initStore(ctx context.Context, cfg *config.Config) (service.CaseStore, service.StatsRepository, error) {
	var (
		store service.CaseStore
		stats service.StatsRepository
	)

	switch cfg.Store {
	case config.StorePostgres:
		c.logger.Info("Initializing Postgres")
		pg, err := postgres.NewPostgres(ctx, cfg.Postgres, c.logger)
		if err != nil {
			c.logger.Error("Failed to init postgres", slog.Any("error", err))
			return nil, nil, fmt.Errorf("failed to init postgres: %w", err)
		}
		c.Postgres = pg
		store, stats = pg.Cases, pg.Cases
	default:
		c.logger.Warn("using in-memory case store; cases are lost on restart")
		mem := memory.NewStore()
		store, stats = mem, mem
	}

	if cfg.Redis.CacheTTL > 0 {
		c.logger.Info("case read cache enabled", slog.Duration("ttl", cfg.Redis.CacheTTL))
		store = redis.NewCachedCases(store, c.Redis.Client, cfg.Redis.CacheTTL, c.logger)
	}
	return store, stats, nil
}

func (c *Components) initBrokers(cfg *config.Config, hub *fanout.Hub) ([]fanout.Broker, error) {
	brokers := []fanout.Broker{hub}
	for _, name := range cfg.Fanout.Brokers {
		switch name {
		case config.BrokerRedis:
			brokers = append(brokers, redis.NewBroker(c.Redis.Client, cfg.Redis.Channel))
		case config.BrokerKafka:
			k, err := kafka.NewBroker(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				return nil, fmt.Errorf("failed to init kafka: %w", err)
			}
			c.Kafka = k
			brokers = append(brokers, k)
		}
	}
	return brokers, nil
}

func collaborators(cfg config.FanoutConfig) []fanout.Collaborator {
	client := &http.Client{Timeout: cfg.SinkTimeout}

	var out []fanout.Collaborator
	if cfg.CorridorURL != "" {
		out = append(out, fanout.NewHTTPCollaborator("corridor", cfg.CorridorURL, client))
	}
	if cfg.NotifyURL != "" {
		out = append(out, fanout.NewHTTPCollaborator("notify", cfg.NotifyURL, client))
	}
	return out
}

func SetupLogger(env string) *slog.Logger {
	switch env {
	case "local":
		return logger.SetupPrettySlog()
	case "dev":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default:
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	}
}

func (c *Components) ShutdownAll() {
	start := time.Now()
	c.logger.Info("component shutdown started")

	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			c.logger.Error("kafka close failed", slog.String("err", err.Error()))
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Error("redis close failed", slog.String("err", err.Error()))
		}
	}
	observability.ShutdownWithTimeout(context.Background(), c.shutdownTracing, c.logger)

	c.logger.Info("all components stopped", slog.Duration("latency", time.Since(start)))
}
