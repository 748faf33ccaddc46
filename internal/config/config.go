package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// RedisURL enables cross-instance broadcast when set.
	RedisURL   string `env:"REDIS_URL"`
	InstanceID string `env:"INSTANCE_ID"`

	MaxChannels        int `env:"MAX_CHANNELS" default:"10000"`
	PushQueueSize      int `env:"PUSH_QUEUE_SIZE" default:"64"`
	BroadcastRateLimit int `env:"BROADCAST_RATE_LIMIT" default:"50"`
	BroadcastBurst     int `env:"BROADCAST_BURST" default:"100"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"15s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.InstanceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("INSTANCE_ID not set and hostname lookup failed: %w", err)
		}
		cfg.InstanceID = hostname
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", cfg.LogFormat)
	}

	if cfg.MaxChannels < 0 {
		return fmt.Errorf("MAX_CHANNELS must not be negative; got %d", cfg.MaxChannels)
	}
	if cfg.PushQueueSize < 1 {
		return fmt.Errorf("PUSH_QUEUE_SIZE must be at least 1; got %d", cfg.PushQueueSize)
	}
	if cfg.BroadcastRateLimit < 1 {
		return fmt.Errorf("BROADCAST_RATE_LIMIT must be at least 1; got %d", cfg.BroadcastRateLimit)
	}
	if cfg.BroadcastBurst < cfg.BroadcastRateLimit {
		return fmt.Errorf("BROADCAST_BURST (%d) must be at least BROADCAST_RATE_LIMIT (%d)", cfg.BroadcastBurst, cfg.BroadcastRateLimit)
	}
	if cfg.HeartbeatInterval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s; got %s", cfg.HeartbeatInterval)
	}

	return nil
}
