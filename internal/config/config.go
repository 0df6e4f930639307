// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file, which wins over the
// defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Environment variables read by Load
const (
	EnvConfigPath      = "BATTLESHIP_CONFIG"
	EnvStorageType     = "STORAGE_TYPE"
	EnvRedisURL        = "REDIS_URL"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvNATSURL         = "NATS_URL"
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvSessionDuration = "SESSION_DURATION"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"
)

// Config is the full server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Recorder RecorderConfig `yaml:"recorder"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // empty allows any origin
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

type StorageConfig struct {
	Type string `yaml:"type"`
}

type RedisConfig struct {
	URL           string `yaml:"url"`
	PoolSize      int    `yaml:"pool_size"`
	MinIdleConns  int    `yaml:"min_idle_conns"`
	HistoryLength int64  `yaml:"history_length"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// NATSConfig enables match publishing when URL is set
type NATSConfig struct {
	URL     string        `yaml:"url"`
	Stream  string        `yaml:"stream"`
	Subject string        `yaml:"subject"`
	MaxAge  time.Duration `yaml:"max_age"`
}

type AuthConfig struct {
	SessionDuration time.Duration `yaml:"session_duration"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type RecorderConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Type: StorageMemory,
		},
		Redis: RedisConfig{
			PoolSize:      10,
			MinIdleConns:  2,
			HistoryLength: 100,
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			MinConns: 2,
			Migrate:  true,
		},
		NATS: NATSConfig{
			Stream:  "BATTLESHIP_MATCHES",
			Subject: "battleship.matches.finished",
			MaxAge:  30 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			SessionDuration: 7 * 24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Recorder: RecorderConfig{
			QueueSize:    256,
			Timeout:      5 * time.Second,
			MaxAttempts:  3,
			RetryBackoff: 200 * time.Millisecond,
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// BATTLESHIP_CONFIG is consulted; with neither set only defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvStorageType); v != "" {
		c.Storage.Type = strings.ToLower(v)
	}
	if v := getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := getenv(EnvDatabaseURL); v != "" {
		c.Postgres.URL = v
	}
	if v := getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := getenv(EnvSessionDuration); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSessionDuration, err)
		}
		c.Auth.SessionDuration = d
	}
	if v := getenv(EnvAllowedOrigins); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("redis storage requires %s or redis.url", EnvRedisURL))
		}
	case StoragePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, fmt.Errorf("postgres storage requires %s or postgres.url", EnvDatabaseURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Auth.SessionDuration <= 0 {
		errs = append(errs, errors.New("auth.session_duration must be positive"))
	}
	if c.NATS.URL != "" && (c.NATS.Stream == "" || c.NATS.Subject == "") {
		errs = append(errs, errors.New("nats.stream and nats.subject are required when nats.url is set"))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger described by the log settings
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) (slog.Level, bool) {
	switch level {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
