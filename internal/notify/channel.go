// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package notify fans alerts out to notification channels.
//
// The Dispatcher delivers each alert to every enabled channel concurrently,
// retries a failed channel once immediately, records per-channel outcomes on
// the alert, and keeps a bounded newest-first history. Channels only need to
// implement Channel:
//
//	d := notify.NewDispatcher(100, notify.WithChannels(
//	    notify.NewWebhookChannel(notify.WebhookConfig{URL: hookURL, Enabled: true}),
//	    notify.NewShoutrrrChannel(notify.ShoutrrrConfig{Name: "slack", URLs: []string{slackURL}, Enabled: true}),
//	))
//	results := d.Dispatch(ctx, alert)
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tripwire/internal/models"
)

// Channel is a notification delivery mechanism.
type Channel interface {
	// Name identifies the channel in delivery results and alert filters.
	Name() string
	// Enabled reports whether the channel should receive alerts.
	Enabled() bool
	// Send delivers the alert. A nil error means the channel confirmed delivery.
	Send(ctx context.Context, alert *models.Alert) error
}

// FormatText renders an alert as plain text for chat and mail channels.
func FormatText(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n\n%s", strings.ToUpper(string(alert.Level)), alert.Title, alert.Message)
	if alert.RuleID != "" {
		fmt.Fprintf(&b, "\nRule: %s", alert.RuleID)
	}
	if alert.Event != nil {
		fmt.Fprintf(&b, "\nSource: %s", alert.Event.SourceIP)
		if alert.Event.Protocol != "" {
			fmt.Fprintf(&b, " (%s)", alert.Event.Protocol)
		}
		if score, ok := alert.Event.Number(models.FieldThreatScore); ok {
			fmt.Fprintf(&b, "\nThreat score: %.1f", score)
		}
	}
	fmt.Fprintf(&b, "\nTime: %s", alert.CreatedAt.UTC().Format(time.RFC3339))
	return b.String()
}
