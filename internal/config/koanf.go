// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"tripwire.yaml",
	"tripwire.yml",
	"/etc/tripwire/tripwire.yaml",
	"/etc/tripwire/tripwire.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "TRIPWIRE_CONFIG"

// Load reads defaults, the optional config file, and the environment, then
// validates the result. Precedence is ENV > File > Defaults.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("TRIPWIRE_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated strings into slices for the
// paths in sliceConfigPaths. Values already loaded as lists are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased variable names (TRIPWIRE_ prefix included) to
// koanf paths. Unlisted variables are ignored.
var envMappings = map[string]string{
	"tripwire_host":                "server.host",
	"tripwire_port":                "server.port",
	"tripwire_cors_origins":        "server.cors_origins",
	"tripwire_rate_limit_requests": "server.rate_limit_requests",
	"tripwire_rate_limit_window":   "server.rate_limit_window",
	"tripwire_rate_limit_disabled": "server.rate_limit_disabled",
	"tripwire_shutdown_timeout":    "server.shutdown_timeout",

	"tripwire_auth_mode":  "security.auth_mode",
	"tripwire_jwt_secret": "security.jwt_secret",
	"tripwire_token_ttl":  "security.token_ttl",

	"tripwire_log_level":  "logging.level",
	"tripwire_log_format": "logging.format",
	"tripwire_log_caller": "logging.caller",

	"tripwire_admission_window":    "admission.window",
	"tripwire_admission_max":       "admission.max",
	"tripwire_admission_blacklist": "admission.blacklist",

	"tripwire_load_default_rules":     "rules.load_defaults",
	"tripwire_rule_throttle_window":   "rules.throttle_window",
	"tripwire_rule_throttle_blacklist": "rules.throttle_blacklist",

	"tripwire_backend":                   "executor.backend.kind",
	"tripwire_backend_webhook_url":       "executor.backend.webhook_url",
	"tripwire_backend_timeout":           "executor.backend.timeout",
	"tripwire_backend_breaker_enabled":   "executor.backend.breaker.enabled",
	"tripwire_backend_breaker_threshold": "executor.backend.breaker.failure_threshold",
	"tripwire_retry_backoff":             "executor.retry_backoff",
	"tripwire_reap_interval":             "executor.reap_interval",
	"tripwire_incident_webhook_url":      "executor.incident_webhook_url",

	"tripwire_alert_history":       "notify.history_size",
	"tripwire_discord_webhook_url": "notify.discord.webhook_url",
	"tripwire_discord_enabled":     "notify.discord.enabled",

	"tripwire_store":             "store.kind",
	"tripwire_store_path":        "store.path",
	"tripwire_store_max_records": "store.max_records",

	"tripwire_bus_enabled": "bus.enabled",
	"tripwire_bus_topic":   "bus.topic",
	"tripwire_bus_buffer":  "bus.buffer",
}

// envTransformFunc maps an environment variable name to its koanf path.
// An empty result tells koanf to skip the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
