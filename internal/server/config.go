// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"

	"github.com/Tyrowin/roomchat/internal/store"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// HistoryConfig bounds the message history API.
type HistoryConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// StoreConfig selects the message store backend.
type StoreConfig struct {
	Driver     string
	SQLitePath string
	BadgerPath string
}

// Options converts the configuration into store.Open options.
func (c StoreConfig) Options() store.Options {
	return store.Options{
		Driver:     c.Driver,
		SQLitePath: c.SQLitePath,
		BadgerPath: c.BadgerPath,
	}
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	RateLimit       RateLimitConfig
	History         HistoryConfig
	Store           StoreConfig
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// environment mirrors Config as flat variables. Unset variables keep their
// zero value and fall back to defaults during sanitization.
type environment struct {
	Port                    string        `env:"SERVER_PORT"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize          int           `env:"MAX_MESSAGE_SIZE"`
	SendBufferSize          int           `env:"SEND_BUFFER_SIZE"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefillInterval string        `env:"RATE_LIMIT_REFILL_INTERVAL"`
	HistoryDefaultLimit     int           `env:"HISTORY_DEFAULT_LIMIT"`
	HistoryMaxLimit         int           `env:"HISTORY_MAX_LIMIT"`
	StoreDriver             string        `env:"STORE_DRIVER"`
	SQLitePath              string        `env:"SQLITE_PATH"`
	BadgerPath              string        `env:"BADGER_PATH"`
	LogLevel                string        `env:"LOG_LEVEL"`
	LogFormat               string        `env:"LOG_FORMAT"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		History: HistoryConfig{
			DefaultLimit: 50,
			MaxLimit:     500,
		},
		Store: StoreConfig{
			Driver:     store.DriverSQLite,
			SQLitePath: "chat.sqlite",
			BadgerPath: "data/badger",
		},
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Sanitized returns a copy of c with every unset or invalid field replaced
// by its default.
func (c Config) Sanitized() Config {
	def := defaultConfig()

	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.History.MaxLimit <= 0 {
		c.History.MaxLimit = def.History.MaxLimit
	}
	if c.History.DefaultLimit <= 0 {
		c.History.DefaultLimit = def.History.DefaultLimit
	}
	c.History.DefaultLimit = min(c.History.DefaultLimit, c.History.MaxLimit)
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = def.Store.SQLitePath
	}
	if c.Store.BadgerPath == "" {
		c.Store.BadgerPath = def.Store.BadgerPath
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables keep their defaults; malformed numbers are an error.
func NewConfigFromEnv() (*Config, error) {
	var vars environment
	if _, err := env.UnmarshalFromEnviron(&vars); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	cfg := defaultConfig()
	if vars.Port != "" {
		cfg.Port = vars.Port
	}
	if vars.AllowedOrigins != "" {
		cfg.AllowedOrigins = parseOrigins(vars.AllowedOrigins)
	}
	if vars.MaxMessageSize > 0 {
		cfg.MaxMessageSize = int64(vars.MaxMessageSize)
	}
	if vars.SendBufferSize > 0 {
		cfg.SendBufferSize = vars.SendBufferSize
	}
	if vars.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = vars.RateLimitBurst
	}
	if vars.RateLimitRefillInterval != "" {
		interval, err := parseRefillInterval(vars.RateLimitRefillInterval)
		if err != nil {
			return nil, fmt.Errorf("config error: RATE_LIMIT_REFILL_INTERVAL: %w", err)
		}
		cfg.RateLimit.RefillInterval = interval
	}
	if vars.HistoryDefaultLimit > 0 {
		cfg.History.DefaultLimit = vars.HistoryDefaultLimit
	}
	if vars.HistoryMaxLimit > 0 {
		cfg.History.MaxLimit = vars.HistoryMaxLimit
	}
	if vars.StoreDriver != "" {
		cfg.Store.Driver = strings.ToLower(vars.StoreDriver)
	}
	if vars.SQLitePath != "" {
		cfg.Store.SQLitePath = vars.SQLitePath
	}
	if vars.BadgerPath != "" {
		cfg.Store.BadgerPath = vars.BadgerPath
	}
	if vars.LogLevel != "" {
		cfg.LogLevel = vars.LogLevel
	}
	if vars.LogFormat != "" {
		cfg.LogFormat = vars.LogFormat
	}
	if vars.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = vars.ShutdownTimeout
	}

	sanitized := cfg.Sanitized()
	return &sanitized, nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseRefillInterval accepts whole seconds ("2") or a Go duration ("500ms").
func parseRefillInterval(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", seconds)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}
