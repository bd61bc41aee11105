// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package logging

import (
	"bytes"
	"context"
	"testing"
)

func TestGeneratedIDs(t *testing.T) {
	if got := len(GenerateCorrelationID()); got != 8 {
		t.Errorf("correlation ID length = %d, want 8", got)
	}
	if got := len(GenerateRequestID()); got != 36 {
		t.Errorf("request ID length = %d, want 36", got)
	}
	if GenerateRequestID() == GenerateRequestID() {
		t.Error("request IDs should be unique")
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	if CorrelationIDFromContext(ctx) != "" || RequestIDFromContext(ctx) != "" {
		t.Fatal("empty context should carry no IDs")
	}

	ctx = ContextWithCorrelationID(ctx, "evt-1")
	ctx = ContextWithRequestID(ctx, "req-1")
	if got := CorrelationIDFromContext(ctx); got != "evt-1" {
		t.Errorf("correlation ID = %q", got)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("request ID = %q", got)
	}

	if got := CorrelationIDFromContext(ContextWithNewCorrelationID(context.Background())); got == "" {
		t.Error("ContextWithNewCorrelationID should set an ID")
	}
}

func TestCtxAddsFields(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithCorrelationID(context.Background(), "evt-42")
	ctx = ContextWithRequestID(ctx, "req-7")
	CtxInfo(ctx).Str("rule_id", "RULE_001").Msg("rule matched")

	m := decodeLine(t, buf)
	if m["correlation_id"] != "evt-42" || m["request_id"] != "req-7" || m["rule_id"] != "RULE_001" {
		t.Errorf("unexpected entry: %v", m)
	}
}

func TestCtxWithoutIDs(t *testing.T) {
	buf := captureGlobal(t)

	CtxWarn(context.Background()).Msg("plain")

	m := decodeLine(t, buf)
	if _, ok := m["correlation_id"]; ok {
		t.Error("correlation_id should be absent")
	}
	if m["level"] != "warn" {
		t.Errorf("level = %v", m["level"])
	}
}

func TestContextWithLogger(t *testing.T) {
	captureGlobal(t)

	var own bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewTestLogger(&own))
	ctx = ContextWithCorrelationID(ctx, "evt-9")
	CtxError(ctx).Msg("to own writer")

	m := decodeLine(t, &own)
	if m["correlation_id"] != "evt-9" {
		t.Errorf("stored logger should still get context fields: %v", m)
	}
}
