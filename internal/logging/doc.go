// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package logging is Tripwire's zerolog-based structured logging layer.
//
// A single global logger is configured once from main with Init. Packages log
// through the level helpers or through Ctx, which attaches the correlation and
// request IDs carried by a context:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("addr", addr).Msg("API listening")
//	logging.Ctx(ctx).Warn().Str("source_ip", ip).Msg("event throttled")
//
// The correlation ID follows a threat event from admission through rule
// evaluation and into any delayed executions it schedules, so every line an
// event produces can be grepped together.
//
// Libraries that want a *slog.Logger (sutureslog) get one from NewSlogLogger;
// its records are written by the same zerolog logger.
//
// Always terminate event chains with Msg or Send, otherwise nothing is written.
package logging
