// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/tomtom215/tripwire/internal/auth"
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateServer(),
		c.validateSecurity(),
		c.validateLogging(),
		c.validateLimits(),
		c.validateExecutor(),
		c.validateNotify(),
		c.validateStore(),
	)
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("TRIPWIRE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitRequests <= 0 {
		return fmt.Errorf("server.rate_limit_requests must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none":
		return nil
	case "jwt":
		if len(c.Security.JWTSecret) < auth.MinSecretLength {
			return fmt.Errorf("TRIPWIRE_JWT_SECRET must be at least %d characters when auth_mode is jwt", auth.MinSecretLength)
		}
		return nil
	default:
		return fmt.Errorf("security.auth_mode must be none or jwt, got %q", c.Security.AuthMode)
	}
}

func (c *Config) validateLogging() error {
	levels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	if !slices.Contains(levels, c.Logging.Level) {
		return fmt.Errorf("TRIPWIRE_LOG_LEVEL must be one of %v, got %q", levels, c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("TRIPWIRE_LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Admission.Window <= 0 {
		return fmt.Errorf("admission.window must be positive")
	}
	if c.Rules.ThrottleWindow <= 0 {
		return fmt.Errorf("rules.throttle_window must be positive")
	}
	return nil
}

func (c *Config) validateExecutor() error {
	b := c.Executor.Backend
	switch b.Kind {
	case "", "log", "memory":
	case "webhook":
		if err := validateHTTPURL(b.WebhookURL, "TRIPWIRE_BACKEND_WEBHOOK_URL"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("executor.backend.kind must be log, memory, or webhook, got %q", b.Kind)
	}
	if c.Executor.IncidentWebhookURL != "" {
		if err := validateHTTPURL(c.Executor.IncidentWebhookURL, "TRIPWIRE_INCIDENT_WEBHOOK_URL"); err != nil {
			return err
		}
	}
	if c.Executor.RetryBackoff < 0 {
		return fmt.Errorf("executor.retry_backoff must not be negative")
	}
	return nil
}

func (c *Config) validateNotify() error {
	for i, w := range c.Notify.Webhooks {
		if !w.Enabled {
			continue
		}
		if err := validateHTTPURL(w.URL, fmt.Sprintf("notify.webhooks[%d].url", i)); err != nil {
			return err
		}
	}
	if c.Notify.Discord.Enabled {
		if err := validateHTTPURL(c.Notify.Discord.WebhookURL, "TRIPWIRE_DISCORD_WEBHOOK_URL"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Kind {
	case "", "memory":
		return nil
	case "badger":
		if c.Store.Path == "" && !c.Store.InMemory {
			return fmt.Errorf("TRIPWIRE_STORE_PATH is required for the badger store")
		}
		return nil
	default:
		return fmt.Errorf("store.kind must be memory or badger, got %q", c.Store.Kind)
	}
}

// validateHTTPURL checks for an absolute http or https URL with a host.
func validateHTTPURL(rawURL, fieldName string) error {
	if rawURL == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	return nil
}
