package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "8090" {
		t.Errorf("port = %q, want 8090", cfg.Server.Port)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Realtime.EventTTL != 24*time.Hour {
		t.Errorf("event ttl = %v, want 24h", cfg.Realtime.EventTTL)
	}
	if cfg.Realtime.NotificationTTL != 7*24*time.Hour {
		t.Errorf("notification ttl = %v, want 168h", cfg.Realtime.NotificationTTL)
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kalendar.yaml")
	yaml := `
server:
  port: "9999"
store:
  backend: natskv
realtime:
  heartbeat_interval: 10s
  max_connections: 500
stream:
  price_interval: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Store.Backend != "natskv" {
		t.Errorf("backend = %q, want natskv", cfg.Store.Backend)
	}
	if cfg.Realtime.HeartbeatInterval != 10*time.Second {
		t.Errorf("heartbeat = %v, want 10s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Realtime.MaxConnections != 500 {
		t.Errorf("max connections = %d, want 500", cfg.Realtime.MaxConnections)
	}
	if cfg.Stream.PriceInterval != 2*time.Second {
		t.Errorf("price interval = %v, want 2s", cfg.Stream.PriceInterval)
	}
	// Untouched sections keep their defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q, want default", cfg.NATS.URL)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kalendar.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9999\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KALENDAR_PORT", "7777")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("KALENDAR_EVENT_TTL", "1h")
	t.Setenv("KALENDAR_LOG_ASYNC", "true")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7777" {
		t.Errorf("port = %q, want env value 7777", cfg.Server.Port)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url = %q, want env value", cfg.NATS.URL)
	}
	if cfg.Realtime.EventTTL != time.Hour {
		t.Errorf("event ttl = %v, want 1h", cfg.Realtime.EventTTL)
	}
	if !cfg.Logging.Async {
		t.Error("log async = false, want true")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres"; c.Postgres.DSN = "" }},
		{"zero heartbeat", func(c *Config) { c.Realtime.HeartbeatInterval = 0 }},
		{"zero max connections", func(c *Config) { c.Realtime.MaxConnections = 0 }},
		{"zero stream interval", func(c *Config) { c.Stream.OddsInterval = 0 }},
		{"empty port", func(c *Config) { c.Server.Port = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("validate accepted invalid config")
			}
		})
	}
}
