package config

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env         string `envconfig:"env" default:"dev"`
	Port        int    `envconfig:"port" default:"8081"`
	GatewayPort int    `envconfig:"gateway_port" default:"8080"`
	JWTSecret   string `envconfig:"jwt_secret" required:"true"`
	NodeID      int64  `envconfig:"node_id" default:"1"`

	StoreBackend   string   `envconfig:"store_backend" default:"memory"`
	ScyllaHosts    []string `envconfig:"scylla_hosts" default:"localhost:9042"`
	ScyllaKeyspace string   `envconfig:"scylla_keyspace" default:"chat"`

	NotificationBackend string `envconfig:"notification_backend" default:"memory"`
	PostgresHost        string `envconfig:"postgres_host" default:"localhost"`
	PostgresPort        int    `envconfig:"postgres_port" default:"5432"`
	PostgresUser        string `envconfig:"postgres_user"`
	PostgresPassword    string `envconfig:"postgres_password"`
	PostgresDB          string `envconfig:"postgres_db"`

	RedisAddr         string        `envconfig:"redis_addr"`
	KafkaBrokers      []string      `envconfig:"kafka_brokers"`
	PushBus           string        `envconfig:"push_bus" default:"local"`
	EventsTopic       string        `envconfig:"events_topic" default:"chat-events"`
	NotificationTopic string        `envconfig:"notification_topic" default:"notification-events"`
	LockBackend       string        `envconfig:"lock_backend" default:"local"`
	PushTimeout       time.Duration `envconfig:"push_timeout" default:"2s"`
	SendRateLimit     uint          `envconfig:"send_rate_limit" default:"5"`
}

// Load reads BIZCHAT_* variables, picking up a local .env outside release mode.
func Load() (*Config, error) {
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Debug("no .env loaded", "err", err)
		}
	}

	c := &Config{}
	if err := envconfig.Process("bizchat", c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must be set")
	}

	switch c.StoreBackend {
	case "memory":
	case "scylla":
		if len(c.ScyllaHosts) == 0 {
			return fmt.Errorf("store backend scylla needs scylla_hosts")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	switch c.NotificationBackend {
	case "memory":
	case "postgres":
		if c.PostgresDB == "" {
			return fmt.Errorf("notification backend postgres needs postgres_db")
		}
	default:
		return fmt.Errorf("unknown notification backend %q", c.NotificationBackend)
	}

	switch c.PushBus {
	case "local":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("push bus kafka needs kafka_brokers")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("push bus redis needs redis_addr")
		}
	default:
		return fmt.Errorf("unknown push bus %q", c.PushBus)
	}

	switch c.LockBackend {
	case "local":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("lock backend redis needs redis_addr")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.LockBackend)
	}

	if c.PushTimeout <= 0 {
		return fmt.Errorf("push_timeout must be positive")
	}
	return nil
}

// ValidateGateway checks what a websocket-only node needs: typing frames
// are checked against the shared conversation store, and message events
// reach it only over a bus.
func (c *Config) ValidateGateway() error {
	if c.StoreBackend != "scylla" {
		return fmt.Errorf("gateway needs store backend scylla, got %q", c.StoreBackend)
	}
	if c.PushBus == "local" {
		return fmt.Errorf("gateway needs a kafka or redis push bus")
	}
	return nil
}

// ValidateNotifier checks that notifications land where the api reads them
// and that their pushes can reach other nodes.
func (c *Config) ValidateNotifier() error {
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("notifier needs kafka_brokers")
	}
	if c.NotificationBackend != "postgres" {
		return fmt.Errorf("notifier needs notification backend postgres, got %q", c.NotificationBackend)
	}
	if c.PushBus == "local" {
		return fmt.Errorf("notifier needs a kafka or redis push bus")
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
}
