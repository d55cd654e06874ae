package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "kalendar.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "KALENDAR_PORT")
	setString(&cfg.Server.CORSOrigin, "KALENDAR_CORS_ORIGIN")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "KALENDAR_NATS_KV_BUCKET")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "KALENDAR_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "KALENDAR_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "KALENDAR_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "KALENDAR_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "KALENDAR_PG_HEALTH_CHECK")
	setString(&cfg.Store.Backend, "KALENDAR_STORE_BACKEND")
	setInt64(&cfg.Cache.L1MaxSizeMB, "KALENDAR_CACHE_L1_SIZE_MB")
	setString(&cfg.Logging.Level, "KALENDAR_LOG_LEVEL")
	setString(&cfg.Logging.Service, "KALENDAR_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "KALENDAR_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "KALENDAR_LOG_ASYNC_BUFFER")
	setInt(&cfg.Logging.AsyncWorkers, "KALENDAR_LOG_ASYNC_WORKERS")
	setDuration(&cfg.Realtime.HeartbeatInterval, "KALENDAR_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Realtime.CleanupInterval, "KALENDAR_CLEANUP_INTERVAL")
	setDuration(&cfg.Realtime.EventTTL, "KALENDAR_EVENT_TTL")
	setDuration(&cfg.Realtime.NotificationTTL, "KALENDAR_NOTIFICATION_TTL")
	setDuration(&cfg.Realtime.ChatTTL, "KALENDAR_CHAT_TTL")
	setInt(&cfg.Realtime.MaxConnections, "KALENDAR_MAX_CONNECTIONS")
	setDuration(&cfg.Stream.PriceInterval, "KALENDAR_STREAM_PRICE_INTERVAL")
	setDuration(&cfg.Stream.OddsInterval, "KALENDAR_STREAM_ODDS_INTERVAL")
	setDuration(&cfg.Stream.VolumeInterval, "KALENDAR_STREAM_VOLUME_INTERVAL")
	setString(&cfg.Push.Provider, "KALENDAR_PUSH_PROVIDER")
	setBool(&cfg.Otel.Enabled, "KALENDAR_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	switch cfg.Store.Backend {
	case "memory", "natskv", "postgres":
	default:
		return fmt.Errorf("store.backend must be memory, natskv or postgres, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for the postgres store backend")
	}
	if cfg.Realtime.HeartbeatInterval <= 0 {
		return errors.New("realtime.heartbeat_interval must be positive")
	}
	if cfg.Realtime.CleanupInterval <= 0 {
		return errors.New("realtime.cleanup_interval must be positive")
	}
	if cfg.Realtime.MaxConnections < 1 {
		return errors.New("realtime.max_connections must be >= 1")
	}
	if cfg.Stream.PriceInterval <= 0 || cfg.Stream.OddsInterval <= 0 || cfg.Stream.VolumeInterval <= 0 {
		return errors.New("stream intervals must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
