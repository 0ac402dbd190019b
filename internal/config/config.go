package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	OutboxMemory = "memory"
	OutboxRedis  = "redis"

	BrokerMemory = "memory"
	BrokerRedis  = "redis"
	BrokerKafka  = "kafka"
)

type Config struct {
	Env          string             `json:"env"`
	Store        string             `json:"store"`
	Http         HttpConfig         `json:"http"`
	Postgres     PostgresConfig     `json:"postgres"`
	Redis        RedisConfig        `json:"redis"`
	Kafka        KafkaConfig        `json:"kafka"`
	Auth         AuthConfig         `json:"auth"`
	Fanout       FanoutConfig       `json:"fanout"`
	Lifecycle    LifecycleConfig    `json:"lifecycle"`
	Revalidation RevalidationConfig `json:"revalidation"`
	Tracing      TracingConfig      `json:"tracing"`
}

type HttpConfig struct {
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	RateLimitRPS    int           `json:"rate_limit_rps"`
	RateLimitBurst  int           `json:"rate_limit_burst"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"ssl_mode"`

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DSN is the URL form accepted by both pgxpool and golang-migrate.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password,omitempty"`
	DB       int           `json:"db"`
	QueueKey string        `json:"queue_key"`
	Channel  string        `json:"channel"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type AuthConfig struct {
	PublicKeyPath  string        `json:"public_key_path"`
	PrivateKeyPath string        `json:"private_key_path,omitempty"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
	TokenTTL       time.Duration `json:"token_ttl"`
}

type FanoutConfig struct {
	Outbox          string        `json:"outbox"`
	Brokers         []string      `json:"brokers"`
	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	MaxAttempts     int           `json:"max_attempts"`
	MaxRedeliveries int           `json:"max_redeliveries"`
	RetryBackoff    time.Duration `json:"retry_backoff"`
	CorridorURL     string        `json:"corridor_url"`
	NotifyURL       string        `json:"notify_url"`
	SinkTimeout     time.Duration `json:"sink_timeout"`
	PollTimeout     time.Duration `json:"poll_timeout"`
	DeliveryTimeout time.Duration `json:"delivery_timeout"`
}

type LifecycleConfig struct {
	Retention     time.Duration `json:"retention"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

type RevalidationConfig struct {
	Stage1GForce     float64 `json:"stage1_g_force"`
	HighGAutoConfirm float64 `json:"high_g_auto_confirm"`
	MLConfidence     float64 `json:"ml_confidence"`
	LowSpeedBypass   float64 `json:"low_speed_bypass"`
	SpeedDrop        float64 `json:"speed_drop"`
}

type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	ServiceName string  `json:"service_name"`
	SampleRatio float64 `json:"sample_ratio"`
}

func Load(ctx context.Context) (*Config, error) {

	stdLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	loadDotEnv(stdLogger)

	cfg := &Config{
		Env:   getEnv("ENV", "local"),
		Store: getEnv("STORE", StoreMemory),
		Http: HttpConfig{
			Port:            getEnv("HTTP_PORT", ":8080"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimitRPS:    getEnvInt("HTTP_RATE_LIMIT_RPS", 5),
			RateLimitBurst:  getEnvInt("HTTP_RATE_LIMIT_BURST", 10),
		},
		Postgres: loadPostgres(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "redis-local:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			QueueKey: getEnv("REDIS_QUEUE_KEY", "sos:events:queue"),
			Channel:  getEnv("REDIS_CHANNEL_PREFIX", "sos"),
			CacheTTL: getEnvDuration("REDIS_CASE_CACHE_TTL", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"kafka-local:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "sos.case-events"),
		},
		Auth: AuthConfig{
			PublicKeyPath:  getEnv("AUTH_PUBLIC_KEY_PATH", ""),
			PrivateKeyPath: getEnv("AUTH_PRIVATE_KEY_PATH", ""),
			Issuer:         getEnv("AUTH_ISSUER", "traffic-sos"),
			Audience:       getEnv("AUTH_AUDIENCE", "traffic-sos-api"),
			TokenTTL:       getEnvDuration("AUTH_TOKEN_TTL", 15*time.Minute),
		},
		Fanout: FanoutConfig{
			Outbox:          getEnv("FANOUT_OUTBOX", OutboxMemory),
			Brokers:         getEnvList("FANOUT_BROKERS", []string{BrokerMemory}),
			Workers:         getEnvInt("FANOUT_WORKERS", 4),
			QueueSize:       getEnvInt("FANOUT_QUEUE_SIZE", 1024),
			MaxAttempts:     getEnvInt("FANOUT_MAX_ATTEMPTS", 3),
			MaxRedeliveries: getEnvInt("FANOUT_MAX_REDELIVERIES", 5),
			RetryBackoff:    getEnvDuration("FANOUT_RETRY_BACKOFF", 500*time.Millisecond),
			CorridorURL:     getEnv("CORRIDOR_URL", ""),
			NotifyURL:       getEnv("NOTIFY_URL", ""),
			SinkTimeout:     getEnvDuration("FANOUT_SINK_TIMEOUT", 3*time.Second),
			PollTimeout:     getEnvDuration("FANOUT_POLL_TIMEOUT", 5*time.Second),
			DeliveryTimeout: getEnvDuration("FANOUT_DELIVERY_TIMEOUT", 15*time.Second),
		},
		Lifecycle: LifecycleConfig{
			Retention:     getEnvDuration("CASE_RETENTION", 24*time.Hour),
			SweepInterval: getEnvDuration("CASE_SWEEP_INTERVAL", time.Hour),
		},
		Revalidation: RevalidationConfig{
			Stage1GForce:     getEnvFloat("REVALIDATE_STAGE1_G", 4.0),
			HighGAutoConfirm: getEnvFloat("REVALIDATE_HIGH_G", 8.0),
			MLConfidence:     getEnvFloat("REVALIDATE_ML_CONFIDENCE", 0.75),
			LowSpeedBypass:   getEnvFloat("REVALIDATE_LOW_SPEED_KMH", 15),
			SpeedDrop:        getEnvFloat("REVALIDATE_SPEED_DROP_KMH", 20),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "traffic-sos"),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stdLogger.Info("Config loaded successfully",
		slog.String("env", cfg.Env),
		slog.String("http_port", cfg.Http.Port),
		slog.String("store", cfg.Store),
		slog.String("outbox", cfg.Fanout.Outbox),
		slog.Any("brokers", cfg.Fanout.Brokers),
	)

	return cfg, nil
}

// LoadPostgres reads only the database section, for tools that need nothing else.
func LoadPostgres() PostgresConfig {
	loadDotEnv(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return loadPostgres()
}

func loadDotEnv(logger *slog.Logger) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn(".env load warning", slog.Any("error", err))
	}
}

func loadPostgres() PostgresConfig {
	return PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "pg-local"),
		Port:            getEnvInt("POSTGRES_PORT", 5432),
		Database:        getEnv("POSTGRES_DB", "traffic_sos"),
		User:            getEnv("POSTGRES_USER", "postgres"),
		Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
		SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
		MaxConns:        int32(getEnvInt("POSTGRES_MAX_CONNS", 20)),
		MinConns:        int32(getEnvInt("POSTGRES_MIN_CONNS", 1)),
		MaxConnLifetime: getEnvDuration("POSTGRES_MAX_CONN_LIFETIME", time.Hour),
	}
}

func (c *Config) Validate() error {

	if c.Http.Port == "" || c.Http.Port[0] != ':' {
		return errors.New("HTTP_PORT must start with ':' like ':8080'")
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.Host == "" {
			return errors.New("POSTGRES_HOST required")
		}
	default:
		return fmt.Errorf("STORE must be %q or %q", StoreMemory, StorePostgres)
	}

	switch c.Fanout.Outbox {
	case OutboxMemory, OutboxRedis:
	default:
		return fmt.Errorf("FANOUT_OUTBOX must be %q or %q", OutboxMemory, OutboxRedis)
	}
	if len(c.Fanout.Brokers) == 0 {
		return errors.New("FANOUT_BROKERS requires at least one broker")
	}
	for _, b := range c.Fanout.Brokers {
		switch b {
		case BrokerMemory, BrokerRedis:
		case BrokerKafka:
			if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
				return errors.New("KAFKA_BROKERS and KAFKA_TOPIC required for kafka broker")
			}
		default:
			return fmt.Errorf("unknown broker %q", b)
		}
	}
	if c.Fanout.Workers <= 0 || c.Fanout.MaxAttempts <= 0 {
		return errors.New("FANOUT_WORKERS and FANOUT_MAX_ATTEMPTS must be positive")
	}

	if c.Auth.PublicKeyPath == "" {
		return errors.New("AUTH_PUBLIC_KEY_PATH required")
	}

	if c.Lifecycle.Retention <= 0 || c.Lifecycle.SweepInterval <= 0 {
		return errors.New("CASE_RETENTION and CASE_SWEEP_INTERVAL must be positive")
	}

	if c.Revalidation.HighGAutoConfirm <= c.Revalidation.Stage1GForce {
		return errors.New("REVALIDATE_HIGH_G must exceed REVALIDATE_STAGE1_G")
	}

	return nil
}

// UsesRedis reports whether any configured component needs a redis connection.
func (c *Config) UsesRedis() bool {
	if c.Fanout.Outbox == OutboxRedis || c.Redis.CacheTTL > 0 {
		return true
	}
	for _, b := range c.Fanout.Brokers {
		if b == BrokerRedis {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
