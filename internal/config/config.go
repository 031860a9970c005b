package config

import (
	"errors"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath        string        `mapstructure:"database_path" yaml:"database_path"`
	StoreConnectRetries int           `mapstructure:"store_connect_retries" yaml:"store_connect_retries"`
	StoreRetryDelay     time.Duration `mapstructure:"store_retry_delay" yaml:"store_retry_delay"`

	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience  string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL     time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	PasswordCost int           `mapstructure:"password_cost" yaml:"password_cost"`

	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PingTimeout        time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBuffer       int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	HistoryPageSize    int           `mapstructure:"history_page_size" yaml:"history_page_size"`

	// RedisURL enables the presence mirror when set.
	RedisURL    string        `mapstructure:"redis_url" yaml:"redis_url"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		LogLevel:            "info",
		LogFormat:           "console",
		DatabasePath:        "wirechat-relay.db",
		StoreConnectRetries: 5,
		StoreRetryDelay:     5 * time.Second,
		JWTSecret:           "change-me-in-production",
		JWTIssuer:           "wirechat-relay",
		JWTAudience:         "wirechat-clients",
		TokenTTL:            24 * time.Hour,
		PasswordCost:        10,
		PingInterval:        25 * time.Second,
		PingTimeout:         60 * time.Second,
		MaxMessageBytes:     10 << 20,
		ClientBuffer:        256,
		RateLimitPerMinute:  600,
		HistoryPageSize:     0,
		PresenceTTL:         2 * time.Minute,
	}
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	if c.PingInterval <= 0 || c.PingTimeout <= 0 {
		errs = append(errs, errors.New("ping_interval and ping_timeout must be positive"))
	}
	if c.StoreConnectRetries < 1 {
		errs = append(errs, errors.New("store_connect_retries must be at least 1"))
	}
	return errors.Join(errs...)
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
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
	if other.RedisURL != "" {
		c.RedisURL = other.RedisURL
	}
}
