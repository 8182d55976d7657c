package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all system-wide settings, grouped by component.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Chat      *ChatConfig      `json:"chat"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuthConfig configures bearer token validation. The same secret validates
// REST headers and WebSocket query-parameter tokens.
type AuthConfig struct {
	Secret   string        `json:"secret"`
	TokenTTL time.Duration `json:"token_ttl"`
}

// ChatConfig bounds message content and pagination.
type ChatConfig struct {
	MaxMessageLength   int `json:"max_message_length"`
	DefaultPageLimit   int `json:"default_page_limit"`
	MaxPageLimit       int `json:"max_page_limit"`
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

// DefaultConfig returns production-ready defaults. The auth secret has no
// default and must come from the environment or a config file.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./mentorchat.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			Secret:   "",
			TokenTTL: 24 * time.Hour,
		},
		Chat: &ChatConfig{
			MaxMessageLength:   4096,
			DefaultPageLimit:   50,
			MaxPageLimit:       200,
			RateLimitPerMinute: 100,
		},
	}
}

// Validate catches invalid configurations before any component starts.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}
	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.Chat.DefaultPageLimit <= 0 || c.Chat.MaxPageLimit < c.Chat.DefaultPageLimit {
		return fmt.Errorf("page limits must be positive and max >= default")
	}
	if c.Chat.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// LoadFromEnv overlays environment variables onto the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("MENTORCHAT_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("MENTORCHAT_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if dbPath := os.Getenv("MENTORCHAT_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("MENTORCHAT_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if secret := os.Getenv("MENTORCHAT_AUTH_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}
	if ttl := os.Getenv("MENTORCHAT_AUTH_TOKEN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Auth.TokenTTL = d
		}
	}
	if pingInterval := os.Getenv("MENTORCHAT_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if readTimeout := os.Getenv("MENTORCHAT_WEBSOCKET_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("MENTORCHAT_WEBSOCKET_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("MENTORCHAT_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}
	if maxLen := os.Getenv("MENTORCHAT_CHAT_MAX_MESSAGE_LENGTH"); maxLen != "" {
		if n, err := strconv.Atoi(maxLen); err == nil {
			config.Chat.MaxMessageLength = n
		}
	}
	if rate := os.Getenv("MENTORCHAT_CHAT_RATE_LIMIT"); rate != "" {
		if n, err := strconv.Atoi(rate); err == nil {
			config.Chat.RateLimitPerMinute = n
		}
	}

	return config
}

// configFile mirrors Config for JSON parsing: durations arrive as strings.
type configFile struct {
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Auth *struct {
		Secret   string `json:"secret"`
		TokenTTL string `json:"token_ttl"`
	} `json:"auth"`
	Chat *ChatConfig `json:"chat"`
}

// LoadFromFile reads a JSON config file over the defaults and validates the
// result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// File values overlay the environment layer so a partial file (say, just
	// the HTTP port) still picks up MENTORCHAT_AUTH_SECRET.
	config := LoadFromEnv()

	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		setDuration(&config.Database.Timeout, file.Database.Timeout)
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		setDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.WebSocket != nil {
		if file.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
		setDuration(&config.WebSocket.PingInterval, file.WebSocket.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
	}
	if file.Auth != nil {
		if file.Auth.Secret != "" {
			config.Auth.Secret = file.Auth.Secret
		}
		setDuration(&config.Auth.TokenTTL, file.Auth.TokenTTL)
	}
	if file.Chat != nil {
		if file.Chat.MaxMessageLength > 0 {
			config.Chat.MaxMessageLength = file.Chat.MaxMessageLength
		}
		if file.Chat.DefaultPageLimit > 0 {
			config.Chat.DefaultPageLimit = file.Chat.DefaultPageLimit
		}
		if file.Chat.MaxPageLimit > 0 {
			config.Chat.MaxPageLimit = file.Chat.MaxPageLimit
		}
		if file.Chat.RateLimitPerMinute > 0 {
			config.Chat.RateLimitPerMinute = file.Chat.RateLimitPerMinute
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors fall back silently to the environment layer.
func LoadConfigWithPrecedence(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}

	return config
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
