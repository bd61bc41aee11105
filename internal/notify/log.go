// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package notify

import (
	"context"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/models"
)

// LogChannel writes alerts to the structured log. It is always enabled.
type LogChannel struct{}

// Name implements Channel.
func (LogChannel) Name() string { return "log" }

// Enabled implements Channel.
func (LogChannel) Enabled() bool { return true }

// Send implements Channel.
func (LogChannel) Send(ctx context.Context, alert *models.Alert) error {
	ev := logging.Ctx(ctx).Warn().
		Str("alert_id", alert.ID).
		Str("level", string(alert.Level)).
		Str("rule_id", alert.RuleID).
		Str("title", alert.Title)
	if alert.Event != nil {
		ev = ev.Str("ip", alert.Event.SourceIP)
	}
	ev.Msg(alert.Message)
	return nil
}
