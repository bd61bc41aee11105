// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tripwire/internal/models"
)

// WebhookConfig configures a generic JSON webhook channel.
type WebhookConfig struct {
	Name        string            `koanf:"name"`
	URL         string            `koanf:"url"`
	Headers     map[string]string `koanf:"headers"` // custom headers (e.g., auth)
	Enabled     bool              `koanf:"enabled"`
	RateLimitMs int               `koanf:"rate_limit_ms"`
	TimeoutMs   int               `koanf:"timeout_ms"`
}

// WebhookPayload is the JSON body posted to the webhook endpoint.
type WebhookPayload struct {
	Alert     *models.Alert `json:"alert"`
	EventType string        `json:"event_type"` // threat_alert
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"` // tripwire
}

// WebhookChannel posts alerts as JSON to an HTTP endpoint.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
	pacer   *rate.Limiter

	mu      sync.RWMutex
	enabled bool
}

// NewWebhookChannel creates a webhook channel. Sends are spaced at least
// RateLimitMs apart (default 500ms).
func NewWebhookChannel(cfg WebhookConfig) *WebhookChannel {
	interval := time.Duration(cfg.RateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = "webhook"
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &WebhookChannel{
		name:    name,
		url:     cfg.URL,
		headers: headers,
		enabled: cfg.Enabled,
		client:  &http.Client{Timeout: timeout},
		pacer:   rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string {
	return c.name
}

// Enabled implements Channel.
func (c *WebhookChannel) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled && c.url != ""
}

// SetEnabled enables or disables the channel.
func (c *WebhookChannel) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(WebhookPayload{
		Alert:     alert,
		EventType: "threat_alert",
		Timestamp: time.Now().UTC(),
		Source:    "tripwire",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	return postJSON(ctx, c.client, c.pacer, c.url, c.headers, body)
}

// postJSON waits for the pacer and POSTs body. Status codes >= 400 are errors.
func postJSON(ctx context.Context, client *http.Client, pacer *rate.Limiter, url string, headers map[string]string, body []byte) error {
	if err := pacer.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
