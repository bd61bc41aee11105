// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

/*
Package metrics provides Prometheus instrumentation for the Tripwire pipeline.

Collectors are registered with the default registry through promauto and are
exposed at /metrics by the API router:

	curl http://localhost:8475/metrics

# Available Metrics

Ingestion and rate limiting:
  - tripwire_events_total{result}: submitted events by admitted/throttled/invalid
  - tripwire_ratelimit_decisions_total{limiter,decision}

Rule engine:
  - tripwire_rule_matches_total{rule_id,status}: fired or suppressed
  - tripwire_rule_evaluation_duration_seconds
  - tripwire_rules_loaded

Action executor:
  - tripwire_actions_total{action,status}
  - tripwire_backend_calls_total{backend,op,result}
  - tripwire_active_blocks, tripwire_active_rate_limits
  - tripwire_reaper_runs_total, tripwire_reaped_entries_total{table}
  - tripwire_scheduled_executions

Notification dispatcher:
  - tripwire_notifications_total{channel,result}
  - tripwire_notification_duration_seconds{channel}

Circuit breaker:
  - tripwire_circuit_breaker_state{name}
  - tripwire_circuit_breaker_transitions_total{name,from_state,to_state}
*/
package metrics
