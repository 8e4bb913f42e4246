// Package config provides YAML-based configuration loading for reqflow.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the application
	AppName string `mapstructure:"app_name"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Scheduler tunes the request scheduler core
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Transport selects the client-side link
	Transport TransportConfig `mapstructure:"transport"`

	// Server configures the serving side
	Server ServerConfig `mapstructure:"server"`

	// Cache tunes the server-side result cache
	Cache CacheConfig `mapstructure:"cache"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SchedulerConfig tunes the core.
type SchedulerConfig struct {
	// ConcurrencyLimit bounds in-flight requests; must be >= 1
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
}

// TransportConfig selects the client link.
type TransportConfig struct {
	// Kind: tcp, quic or mem
	Kind string `mapstructure:"kind"`
	// Addr is the dial address (or mem listener name)
	Addr string `mapstructure:"addr"`
	// DialTimeout bounds connection establishment
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ServerConfig configures the serving side.
type ServerConfig struct {
	// Listen entries are "kind:address", e.g. "tcp::8484" or "quic::8485"
	Listen []string `mapstructure:"listen"`
	// ExecLimit bounds concurrent executor invocations; 0 = unlimited
	ExecLimit int `mapstructure:"exec_limit"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	// TTL default lifetime of cached entries; 0 = no expiry
	TTL time.Duration `mapstructure:"ttl"`
	// MaxBytes caps total cached value bytes; 0 = unlimited
	MaxBytes uint64 `mapstructure:"max_bytes"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "reqflow",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/reqflow.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Scheduler: SchedulerConfig{ConcurrencyLimit: 10},
		Transport: TransportConfig{Kind: "tcp", Addr: "127.0.0.1:8484", DialTimeout: 5 * time.Second},
		Server:    ServerConfig{Listen: []string{"tcp::8484"}, ExecLimit: 64},
		Cache:     CacheConfig{TTL: 10 * time.Minute},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix REQFLOW and `.`/`-` are replaced with `_`.
// Example: REQFLOW_SCHEDULER_CONCURRENCY_LIMIT=4
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("REQFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("scheduler.concurrency_limit", cfg.Scheduler.ConcurrencyLimit)
	v.SetDefault("transport.kind", cfg.Transport.Kind)
	v.SetDefault("transport.addr", cfg.Transport.Addr)
	v.SetDefault("transport.dial_timeout", cfg.Transport.DialTimeout)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.exec_limit", cfg.Server.ExecLimit)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.max_bytes", cfg.Cache.MaxBytes)

	if path == "" {
		if envPath := os.Getenv("REQFLOW_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reqflow")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".reqflow"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Scheduler.ConcurrencyLimit < 1 {
		return fmt.Errorf("invalid scheduler.concurrency_limit: %d", c.Scheduler.ConcurrencyLimit)
	}
	switch strings.ToLower(strings.TrimSpace(c.Transport.Kind)) {
	case "tcp", "quic", "mem":
		c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	default:
		return fmt.Errorf("invalid transport.kind: %q", c.Transport.Kind)
	}
	if c.Server.ExecLimit < 0 {
		return fmt.Errorf("invalid server.exec_limit: %d", c.Server.ExecLimit)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
