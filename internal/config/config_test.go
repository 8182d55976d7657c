package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigRequiresSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("defaults should not validate without an auth secret")
	}

	cfg.Auth.Secret = "test-secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with secret should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Auth.Secret = "test-secret"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"read timeout below ping interval", func(c *Config) {
			c.WebSocket.ReadTimeout = c.WebSocket.PingInterval / 2
		}},
		{"zero buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"zero token TTL", func(c *Config) { c.Auth.TokenTTL = 0 }},
		{"zero max message length", func(c *Config) { c.Chat.MaxMessageLength = 0 }},
		{"max page limit below default", func(c *Config) { c.Chat.MaxPageLimit = c.Chat.DefaultPageLimit - 1 }},
		{"zero rate limit", func(c *Config) { c.Chat.RateLimitPerMinute = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MENTORCHAT_HTTP_PORT", "9090")
	t.Setenv("MENTORCHAT_AUTH_SECRET", "env-secret")
	t.Setenv("MENTORCHAT_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("MENTORCHAT_CHAT_MAX_MESSAGE_LENGTH", "2048")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("secret = %q, want env-secret", cfg.Auth.Secret)
	}
	if cfg.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("ping interval = %v, want 15s", cfg.WebSocket.PingInterval)
	}
	if cfg.Chat.MaxMessageLength != 2048 {
		t.Errorf("max message length = %d, want 2048", cfg.Chat.MaxMessageLength)
	}
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MENTORCHAT_HTTP_PORT", "not-a-number")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != DefaultConfig().HTTP.Port {
		t.Errorf("port = %d, want default", cfg.HTTP.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("MENTORCHAT_AUTH_SECRET", "env-secret")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 9999, "read_timeout": "45s"},
		"chat": {"max_message_length": 1000}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != 45*time.Second {
		t.Errorf("read timeout = %v, want 45s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Chat.MaxMessageLength != 1000 {
		t.Errorf("max message length = %d, want 1000", cfg.Chat.MaxMessageLength)
	}
	// Partial files still pick up the secret from the environment layer.
	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("secret = %q, want env-secret", cfg.Auth.Secret)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("MENTORCHAT_AUTH_SECRET", "env-secret")
	t.Setenv("MENTORCHAT_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 7777}}`), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := LoadConfigWithPrecedence(path)
	if cfg.HTTP.Port != 7777 {
		t.Errorf("file should win over env: port = %d, want 7777", cfg.HTTP.Port)
	}

	// A bad path falls back to the environment layer.
	cfg = LoadConfigWithPrecedence("/nonexistent/config.json")
	if cfg.HTTP.Port != 9090 {
		t.Errorf("fallback port = %d, want 9090", cfg.HTTP.Port)
	}
}
