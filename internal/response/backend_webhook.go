// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// WebhookBackend delegates mitigations to a firewall controller over HTTP.
// Every operation is a POST of a MitigationRequest to the configured URL.
type WebhookBackend struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// MitigationRequest is the JSON body sent to the firewall controller.
type MitigationRequest struct {
	Op              string `json:"op"`
	IP              string `json:"ip"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	RatePerMinute   int    `json:"rate_per_minute,omitempty"`
	Source          string `json:"source"`
}

// NewWebhookBackend creates a WebhookBackend. A zero timeout defaults to 10s.
func NewWebhookBackend(url string, headers map[string]string, timeout time.Duration) *WebhookBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return &WebhookBackend{
		url:     url,
		headers: h,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements MitigationBackend.
func (b *WebhookBackend) Name() string { return "webhook" }

// Block implements MitigationBackend.
func (b *WebhookBackend) Block(ctx context.Context, ip string, duration time.Duration) error {
	return b.post(ctx, MitigationRequest{Op: OpBlock, IP: ip, DurationSeconds: int64(duration / time.Second)})
}

// Unblock implements MitigationBackend.
func (b *WebhookBackend) Unblock(ctx context.Context, ip string) error {
	return b.post(ctx, MitigationRequest{Op: OpUnblock, IP: ip})
}

// RateLimit implements MitigationBackend.
func (b *WebhookBackend) RateLimit(ctx context.Context, ip string, ratePerMinute int, duration time.Duration) error {
	return b.post(ctx, MitigationRequest{
		Op:              OpRateLimit,
		IP:              ip,
		DurationSeconds: int64(duration / time.Second),
		RatePerMinute:   ratePerMinute,
	})
}

// RemoveRateLimit implements MitigationBackend.
func (b *WebhookBackend) RemoveRateLimit(ctx context.Context, ip string) error {
	return b.post(ctx, MitigationRequest{Op: OpRemoveRateLimit, IP: ip})
}

func (b *WebhookBackend) post(ctx context.Context, payload MitigationRequest) error {
	payload.Source = "tripwire"
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mitigation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("firewall controller returned status %d for %s", resp.StatusCode, payload.Op)
	}
	return nil
}
