package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	WSAddr            string        `mapstructure:"ws_addr" yaml:"ws_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	// DatabasePath is the sqlite file match results are recorded in. Empty disables recording.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	// NATSURL is the broker match results are published to. Empty disables publishing.
	NATSURL string `mapstructure:"nats_url" yaml:"nats_url"`

	SweepInterval      time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3000",
		WSAddr:             ":3001",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "duelsync.db",
		SweepInterval:      time.Minute,
		MaxMessageBytes:    64 << 10,
		RateLimitPerMinute: 6000,
		AllowedOrigins:     []string{"*"},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.WSAddr != "" {
		c.WSAddr = other.WSAddr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.NATSURL != "" {
		c.NATSURL = other.NATSURL
	}
	if other.SweepInterval != 0 {
		c.SweepInterval = other.SweepInterval
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" || c.WSAddr == "" {
		errs = append(errs, errors.New("addr and ws_addr are required"))
	}
	if c.Addr == c.WSAddr {
		errs = append(errs, fmt.Errorf("addr and ws_addr must differ, both are %q", c.Addr))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want console or json", c.LogFormat))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("sweep_interval %v: must not be negative", c.SweepInterval))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_message_bytes %d: must be positive", c.MaxMessageBytes))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_per_minute %d: must not be negative", c.RateLimitPerMinute))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout %v: must be positive", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}
