package config

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var loadEnvOnce sync.Once

func loadEnv() {
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})
}

// Config returns a single raw value from the environment, after merging .env.
func Config(key string) string {
	loadEnv()
	return os.Getenv(key)
}

type Settings struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	DBDriver          string        `envconfig:"DB_DRIVER" default:"postgres"`
	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	NotifyRedisURL    string        `envconfig:"NOTIFY_REDIS_URL"`
	NotifyRedisPrefix string        `envconfig:"NOTIFY_REDIS_PREFIX" default:"chat"`
	NotifyKafka       []string      `envconfig:"NOTIFY_KAFKA_BROKERS"`
	NotifyKafkaTopic  string        `envconfig:"NOTIFY_KAFKA_TOPIC" default:"chat.events"`
	NotifyTimeout     time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"2s"`

	MessageMaxLength  int    `envconfig:"MESSAGE_MAX_LENGTH" default:"4000"`
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"@every 10m"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`
}

// Load reads Settings from the process environment (and .env when present).
func Load() (Settings, error) {
	loadEnv()
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	switch s.DBDriver {
	case "postgres", "sqlite":
	default:
		return Settings{}, fmt.Errorf("config: unsupported DB_DRIVER %q", s.DBDriver)
	}
	if s.DBMaxOpenConns <= 0 {
		return Settings{}, fmt.Errorf("config: DB_MAX_OPEN_CONNS must be positive, got %d", s.DBMaxOpenConns)
	}
	if s.DBMaxIdleConns < 0 {
		return Settings{}, fmt.Errorf("config: DB_MAX_IDLE_CONNS must not be negative, got %d", s.DBMaxIdleConns)
	}
	if s.MessageMaxLength <= 0 {
		return Settings{}, fmt.Errorf("config: MESSAGE_MAX_LENGTH must be positive, got %d", s.MessageMaxLength)
	}
	return s, nil
}
