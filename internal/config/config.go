// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/tripwire/internal/ingest"
	"github.com/tomtom215/tripwire/internal/notify"
	"github.com/tomtom215/tripwire/internal/response"
	"github.com/tomtom215/tripwire/internal/store"
	"github.com/tomtom215/tripwire/internal/supervisor"
)

// Config is the complete Tripwire configuration.
type Config struct {
	Server     ServerConfig          `koanf:"server"`
	Security   SecurityConfig        `koanf:"security"`
	Logging    LoggingConfig         `koanf:"logging"`
	Admission  LimiterConfig         `koanf:"admission"`
	Rules      RulesConfig           `koanf:"rules"`
	Executor   ExecutorConfig        `koanf:"executor"`
	Notify     NotifyConfig          `koanf:"notify"`
	Store      store.Config          `koanf:"store"`
	Bus        ingest.Config         `koanf:"bus"`
	Supervisor supervisor.TreeConfig `koanf:"supervisor"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig configures API authentication.
type SecurityConfig struct {
	// AuthMode is "none" or "jwt". With "jwt", mutating routes need a bearer token.
	AuthMode  string        `koanf:"auth_mode"`
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// LoggingConfig mirrors logging.Config without the writer.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// LimiterConfig configures a sliding-window limiter.
type LimiterConfig struct {
	Window    time.Duration `koanf:"window"`
	Max       int           `koanf:"max"`
	Blacklist time.Duration `koanf:"blacklist"`
	MaxKeys   int           `koanf:"max_keys"`
}

// RulesConfig configures the rule engine.
type RulesConfig struct {
	// LoadDefaults seeds the built-in rule set when the store has no rules.
	LoadDefaults bool `koanf:"load_defaults"`

	// Throttle bounds per-rule triggers. Max is taken from each rule.
	ThrottleWindow    time.Duration `koanf:"throttle_window"`
	ThrottleBlacklist time.Duration `koanf:"throttle_blacklist"`
}

// ExecutorConfig configures the action executor.
type ExecutorConfig struct {
	Backend            response.BackendConfig `koanf:"backend"`
	RetryBackoff       time.Duration          `koanf:"retry_backoff"`
	ReapInterval       time.Duration          `koanf:"reap_interval"`
	IncidentWebhookURL string                 `koanf:"incident_webhook_url"`
	AuditHistory       int                    `koanf:"audit_history"`
}

// NotifyConfig configures alert channels.
type NotifyConfig struct {
	HistorySize int                     `koanf:"history_size"`
	Webhooks    []notify.WebhookConfig  `koanf:"webhooks"`
	Discord     notify.DiscordConfig    `koanf:"discord"`
	Shoutrrr    []notify.ShoutrrrConfig `koanf:"shoutrrr"`
}

// defaultConfig returns the built-in defaults, applied before file and env.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8443,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Security: SecurityConfig{
			AuthMode: "none",
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admission: LimiterConfig{
			Window:    time.Minute,
			Max:       100,
			Blacklist: 5 * time.Minute,
			MaxKeys:   100000,
		},
		Rules: RulesConfig{
			LoadDefaults:      true,
			ThrottleWindow:    time.Hour,
			ThrottleBlacklist: time.Hour,
		},
		Executor: ExecutorConfig{
			Backend: response.BackendConfig{
				Kind:    "log",
				Timeout: 5 * time.Second,
				Breaker: response.BreakerConfig{
					Enabled:          true,
					FailureThreshold: 5,
					OpenTimeout:      30 * time.Second,
				},
			},
			RetryBackoff: response.DefaultRetryBackoff,
			ReapInterval: time.Minute,
			AuditHistory: 1000,
		},
		Notify: NotifyConfig{
			HistorySize: 1000,
			Discord: notify.DiscordConfig{
				RateLimitMs: 1000,
			},
		},
		Store: store.Config{
			Kind:       "memory",
			Path:       "/data/tripwire",
			MaxRecords: 10000,
		},
		Bus: ingest.Config{
			Enabled:      false,
			Topic:        ingest.DefaultTopic,
			Buffer:       1024,
			CloseTimeout: 10 * time.Second,
		},
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}
