// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

/*
Package api provides the HTTP REST API for Tripwire.

The API is the minimal administrative surface of the pipeline. Every route
goes through a Service (satisfied by *pipeline.Pipeline), so manual blocks
share precedence rules with rule-driven ones.

Routes:

  - /api/v1/health: liveness and pipeline statistics
  - /api/v1/events: submit a threat event (synchronous, or 202 when a bus publisher is set)
  - /api/v1/rules: list, create, update, delete, enable, and disable rules
  - /api/v1/blocked and /api/v1/rate-limited: list and manage mitigations
  - /api/v1/alerts and /api/v1/executions: history, newest first
  - /metrics: Prometheus exposition

Responses use a single envelope:

	{"status":"success","data":...,"metadata":{"timestamp":"..."}}
	{"status":"error","error":{"code":"NOT_FOUND","message":"..."},"metadata":{...}}

Mutating routes require a bearer token when a JWTManager is configured.
Requests are rate limited per client IP with go-chi/httprate.
*/
package api
