// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tripwire/internal/models"
)

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	WebhookURL  string `koanf:"webhook_url"`
	Enabled     bool   `koanf:"enabled"`
	RateLimitMs int    `koanf:"rate_limit_ms"` // minimum ms between messages
}

// DiscordChannel posts alerts as Discord embeds.
type DiscordChannel struct {
	webhookURL string
	enabled    bool
	client     *http.Client
	pacer      *rate.Limiter
}

// NewDiscordChannel creates a Discord channel (default pacing 1s).
func NewDiscordChannel(cfg DiscordConfig) *DiscordChannel {
	interval := time.Duration(cfg.RateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	return &DiscordChannel{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled,
		client:     &http.Client{Timeout: 10 * time.Second},
		pacer:      rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Name implements Channel.
func (c *DiscordChannel) Name() string {
	return "discord"
}

// Enabled implements Channel.
func (c *DiscordChannel) Enabled() bool {
	return c.enabled && c.webhookURL != ""
}

// Send implements Channel.
func (c *DiscordChannel) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{buildEmbed(alert)}})
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}
	if err := postJSON(ctx, c.client, c.pacer, c.webhookURL, nil, body); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func buildEmbed(alert *models.Alert) discordEmbed {
	fields := []discordEmbedField{
		{Name: "Level", Value: string(alert.Level), Inline: true},
	}
	if alert.RuleID != "" {
		fields = append(fields, discordEmbedField{Name: "Rule", Value: alert.RuleID, Inline: true})
	}
	if ev := alert.Event; ev != nil {
		fields = append(fields, discordEmbedField{Name: "Source IP", Value: ev.SourceIP, Inline: true})
		if ev.AttackType != "" {
			fields = append(fields, discordEmbedField{Name: "Attack", Value: ev.AttackType, Inline: true})
		}
		if score, ok := ev.Number(models.FieldThreatScore); ok {
			fields = append(fields, discordEmbedField{Name: "Score", Value: fmt.Sprintf("%.1f", score), Inline: true})
		}
	}

	return discordEmbed{
		Title:       alert.Title,
		Description: alert.Message,
		Color:       levelColor(alert.Level),
		Timestamp:   alert.CreatedAt.Format(time.RFC3339),
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: "Tripwire"},
	}
}

func levelColor(level models.Severity) int {
	switch level {
	case models.SeverityCritical:
		return 0xFF0000 // Red
	case models.SeverityHigh:
		return 0xFFA500 // Orange
	case models.SeverityMedium:
		return 0xF1C40F // Yellow
	case models.SeverityLow:
		return 0x3498DB // Blue
	default:
		return 0x95A5A6 // Gray
	}
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}
