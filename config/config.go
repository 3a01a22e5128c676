package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Admission     AdmissionConfig     `yaml:"admission"`
	SeatHold      SeatHoldConfig      `yaml:"seat_hold"`
	Reservation   ReservationConfig   `yaml:"reservation"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Log           LogConfig           `yaml:"log"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers              []string      `yaml:"brokers"`
	PaymentCommandsTopic string        `yaml:"payment_commands_topic"`
	PaymentResultsTopic  string        `yaml:"payment_results_topic"`
	NotificationsTopic   string        `yaml:"notifications_topic"`
	PaymentGroupID       string        `yaml:"payment_group_id"`
	ResultGroupID        string        `yaml:"result_group_id"`
	NotificationGroupID  string        `yaml:"notification_group_id"`
	RetryMinBackoff      time.Duration `yaml:"retry_min_backoff"`
	RetryMaxBackoff      time.Duration `yaml:"retry_max_backoff"`
}

type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

const (
	NotifyDriverKafka    = "kafka"
	NotifyDriverRabbitMQ = "rabbitmq"
	NotifyDriverNone     = "none"
)

type NotificationsConfig struct {
	Driver string `yaml:"driver"`
}

type AdmissionConfig struct {
	Capacity        int           `yaml:"capacity"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	ActiveTTL       time.Duration `yaml:"active_ttl"`
	PromoteInterval time.Duration `yaml:"promote_interval"`
	PromoteBatch    int           `yaml:"promote_batch"`
}

const (
	SeatHoldBackendRedis    = "redis"
	SeatHoldBackendPostgres = "postgres"
)

type SeatHoldConfig struct {
	Backend       string        `yaml:"backend"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type ReservationConfig struct {
	HoldTTL        time.Duration `yaml:"hold_ttl"`
	PaymentTimeout time.Duration `yaml:"payment_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatch     int           `yaml:"sweep_batch"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads .env (if any), the YAML file at path, then applies env overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
}

func (c *Config) applyDefaults() {
	setDuration(&c.HTTP.ShutdownTimeout, 10*time.Second)
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}

	setString(&c.Kafka.PaymentCommandsTopic, "payment-requests")
	setString(&c.Kafka.PaymentResultsTopic, "payment-results")
	setString(&c.Kafka.NotificationsTopic, "reservation-events")
	setString(&c.Kafka.PaymentGroupID, "payment-processor")
	setString(&c.Kafka.ResultGroupID, "payment-result-applier")
	setString(&c.Kafka.NotificationGroupID, "reservation-notifier")
	setDuration(&c.Kafka.RetryMinBackoff, 200*time.Millisecond)
	setDuration(&c.Kafka.RetryMaxBackoff, 10*time.Second)

	setString(&c.RabbitMQ.Queue, "reservation-events")
	setString(&c.Notifications.Driver, NotifyDriverKafka)

	if c.Admission.Capacity == 0 {
		c.Admission.Capacity = 100
	}
	setDuration(&c.Admission.TokenTTL, 10*time.Minute)
	setDuration(&c.Admission.ActiveTTL, 10*time.Minute)
	setDuration(&c.Admission.PromoteInterval, time.Second)
	if c.Admission.PromoteBatch == 0 {
		c.Admission.PromoteBatch = 50
	}

	setString(&c.SeatHold.Backend, SeatHoldBackendRedis)
	setDuration(&c.SeatHold.SweepInterval, time.Minute)

	setDuration(&c.Reservation.HoldTTL, 5*time.Minute)
	setDuration(&c.Reservation.PaymentTimeout, 5*time.Minute)
	setDuration(&c.Reservation.SweepInterval, 30*time.Second)
	if c.Reservation.SweepBatch == 0 {
		c.Reservation.SweepBatch = 500
	}

	setDuration(&c.Catalog.CacheTTL, time.Minute)

	setString(&c.Log.Level, "info")
	setString(&c.Log.Format, "json")
}

func (c *Config) Validate() error {
	if c.Admission.Capacity < 0 {
		return fmt.Errorf("admission.capacity must be positive, got %d", c.Admission.Capacity)
	}
	if c.Admission.TokenTTL < 0 || c.Admission.ActiveTTL < 0 {
		return errors.New("admission ttl must be positive")
	}
	if c.Admission.ActiveTTL > c.Admission.TokenTTL {
		return errors.New("admission.active_ttl must not exceed admission.token_ttl")
	}
	if c.Reservation.HoldTTL < 0 || c.Reservation.PaymentTimeout < 0 {
		return errors.New("reservation timeouts must be positive")
	}
	switch c.SeatHold.Backend {
	case SeatHoldBackendRedis, SeatHoldBackendPostgres:
	default:
		return fmt.Errorf("unknown seat_hold.backend %q", c.SeatHold.Backend)
	}
	switch c.Notifications.Driver {
	case NotifyDriverKafka, NotifyDriverNone:
	case NotifyDriverRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return errors.New("rabbitmq.url is required for the rabbitmq notification driver")
		}
	default:
		return fmt.Errorf("unknown notifications.driver %q", c.Notifications.Driver)
	}
	return nil
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
