// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tripwire/internal/logging"
)

// LogBackend records mitigations in the log without enforcing them.
// Useful for dry runs before wiring a real firewall controller.
type LogBackend struct {
	logger zerolog.Logger
}

// NewLogBackend creates a LogBackend.
func NewLogBackend() *LogBackend {
	return &LogBackend{logger: logging.WithComponent("mitigation-log")}
}

// Name implements MitigationBackend.
func (b *LogBackend) Name() string { return "log" }

// Block implements MitigationBackend.
func (b *LogBackend) Block(_ context.Context, ip string, duration time.Duration) error {
	b.logger.Info().Str("ip", ip).Dur("duration", duration).Msg("block (dry run)")
	return nil
}

// Unblock implements MitigationBackend.
func (b *LogBackend) Unblock(_ context.Context, ip string) error {
	b.logger.Info().Str("ip", ip).Msg("unblock (dry run)")
	return nil
}

// RateLimit implements MitigationBackend.
func (b *LogBackend) RateLimit(_ context.Context, ip string, ratePerMinute int, duration time.Duration) error {
	b.logger.Info().Str("ip", ip).Int("rate_per_minute", ratePerMinute).Dur("duration", duration).Msg("rate limit (dry run)")
	return nil
}

// RemoveRateLimit implements MitigationBackend.
func (b *LogBackend) RemoveRateLimit(_ context.Context, ip string) error {
	b.logger.Info().Str("ip", ip).Msg("remove rate limit (dry run)")
	return nil
}
