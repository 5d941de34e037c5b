package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	platformstrings "appeals/pkg/platform/strings"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config captures process level configuration for the appeals engine.
type Config struct {
	Addr           string        `env:"APPEALS_ADDR"             envDefault:":8080"`
	LogLevel       string        `env:"APPEALS_LOG_LEVEL"        envDefault:"info"`
	DatabaseURL    string        `env:"APPEALS_DATABASE_URL"`
	TxTimeout      time.Duration `env:"APPEALS_TX_TIMEOUT"       envDefault:"5s"`
	RosterCacheTTL time.Duration `env:"APPEALS_ROSTER_CACHE_TTL" envDefault:"5m"`
	JWTSigningKey  string        `env:"APPEALS_JWT_SIGNING_KEY"  envDefault:"dev-secret-key-change-in-production"`
	CatalogFile    string        `env:"APPEALS_CATALOG_FILE"`

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig configures the roster cache connection. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"APPEALS_REDIS_URL"`
	PoolSize     int           `env:"APPEALS_REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"APPEALS_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"APPEALS_REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"APPEALS_REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"APPEALS_REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// KafkaConfig configures the outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers        []string      `env:"APPEALS_KAFKA_BROKERS"   envSeparator:","`
	Topic          string        `env:"APPEALS_KAFKA_TOPIC"     envDefault:"appeals.judgment"`
	OutboxInterval time.Duration `env:"APPEALS_OUTBOX_INTERVAL" envDefault:"2s"`
	BatchSize      int           `env:"APPEALS_OUTBOX_BATCH"    envDefault:"100"`
}

// FromEnv parses the environment so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = platformstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start a server.
func (c Config) Validate() error {
	if c.TxTimeout <= 0 {
		return fmt.Errorf("APPEALS_TX_TIMEOUT must be positive, got %s", c.TxTimeout)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("APPEALS_KAFKA_TOPIC is required when brokers are set")
	}
	if c.Kafka.Enabled() && c.Kafka.OutboxInterval <= 0 {
		return fmt.Errorf("APPEALS_OUTBOX_INTERVAL must be positive, got %s", c.Kafka.OutboxInterval)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// UsesDevKey reports whether the development signing key is still in place.
func (c Config) UsesDevKey() bool {
	return c.JWTSigningKey == devSigningKey
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// ParseLevel maps APPEALS_LOG_LEVEL onto a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}
