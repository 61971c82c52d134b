package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. SERVICEHUB_DATABASE_HOST.
const EnvPrefix = "SERVICEHUB"

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Audit    AuditConfig    `yaml:"audit"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address               string `yaml:"address"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" split_words:"true"`
}

func (h HTTPConfig) RequestTimeout() time.Duration {
	return time.Duration(h.RequestTimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Name           string `yaml:"name"`
	SSLMode        string `yaml:"ssl_mode" split_words:"true"`
	MaxConns       int32  `yaml:"max_conns" split_words:"true"`
	LockTimeoutMs  int    `yaml:"lock_timeout_ms" split_words:"true"`
	MigrateOnStart bool   `yaml:"migrate_on_start" split_words:"true"`
}

func (d DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	if d.MaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", d.MaxConns)
	}
	return dsn
}

func (d DatabaseConfig) LockTimeout() time.Duration {
	return time.Duration(d.LockTimeoutMs) * time.Millisecond
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic" split_words:"true"`
	NotificationsTopic string   `yaml:"notifications_topic" split_words:"true"`
	AuditTopic         string   `yaml:"audit_topic" split_words:"true"`
	GroupID            string   `yaml:"group_id" split_words:"true"`
}

type BookingConfig struct {
	// Timezone is the storage convention scheduled times are interpreted in.
	Timezone          string `yaml:"timezone"`
	CatalogCacheTTL   int    `yaml:"catalog_cache_ttl_seconds" envconfig:"CATALOG_CACHE_TTL_SECONDS"`
	PendingTTLMinutes int    `yaml:"pending_ttl_minutes" split_words:"true"`
	// PendingSoftHold keeps pending bookings out of the conflict check; a
	// booking then claims its slot only when confirmed.
	PendingSoftHold bool `yaml:"pending_soft_hold" split_words:"true"`
}

func (b BookingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

type AuditConfig struct {
	QueueSize      int   `yaml:"queue_size" split_words:"true"`
	MaxRetries     int   `yaml:"max_retries" split_words:"true"`
	RetryBackoffMs int   `yaml:"retry_backoff_ms" split_words:"true"`
	NodeID         int64 `yaml:"node_id" split_words:"true"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes  int `yaml:"expiration_sweep_minutes" split_words:"true"`
	DeadLetterReplaySeconds int `yaml:"dead_letter_replay_seconds" split_words:"true"`
	DeadLetterBatch         int `yaml:"dead_letter_batch" split_words:"true"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// LoadConfig reads the YAML file at path, applies SERVICEHUB_* environment
// overrides and fills in defaults for anything left unset. A missing file is
// not an error when the environment provides the configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RequestTimeoutSeconds == 0 {
		c.HTTP.RequestTimeoutSeconds = 10
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking-events"
	}
	if c.Kafka.AuditTopic == "" {
		c.Kafka.AuditTopic = "audit-log"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "servicehub-worker"
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "UTC"
	}
	if c.Booking.CatalogCacheTTL == 0 {
		c.Booking.CatalogCacheTTL = 60
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1024
	}
	if c.Audit.MaxRetries == 0 {
		c.Audit.MaxRetries = 3
	}
	if c.Audit.RetryBackoffMs == 0 {
		c.Audit.RetryBackoffMs = 500
	}
	if c.Audit.NodeID == 0 {
		c.Audit.NodeID = 1
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 1
	}
	if c.Worker.DeadLetterReplaySeconds == 0 {
		c.Worker.DeadLetterReplaySeconds = 30
	}
	if c.Worker.DeadLetterBatch == 0 {
		c.Worker.DeadLetterBatch = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
