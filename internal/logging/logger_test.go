// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// captureGlobal swaps the global logger for one writing to a buffer.
func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	prevLogger := Logger()
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		SetLogger(prevLogger)
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	SetLogger(NewTestLogger(&buf))
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("no log output")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", line, err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitJSON(t *testing.T) {
	prevLogger := Logger()
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		SetLogger(prevLogger)
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})

	Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	Warn().Str("source_ip", "203.0.113.9").Msg("blocked")
	m := decodeLine(t, &buf)
	if m["message"] != "blocked" || m["source_ip"] != "203.0.113.9" || m["level"] != "warn" {
		t.Errorf("unexpected entry: %v", m)
	}
	if _, ok := m["time"]; !ok {
		t.Error("entry should carry a timestamp")
	}
}

func TestInitConsole(t *testing.T) {
	prevLogger := Logger()
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		SetLogger(prevLogger)
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "console", Output: &buf})
	Debug().Msg("console line")

	out := buf.String()
	if !strings.Contains(out, "console line") || strings.HasPrefix(out, "{") {
		t.Errorf("expected console output, got %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureGlobal(t)

	logger := WithComponent("executor")
	logger.Info().Msg("started")

	m := decodeLine(t, buf)
	if m["component"] != "executor" {
		t.Errorf("component = %v, want executor", m["component"])
	}
}

func TestErrHelper(t *testing.T) {
	buf := captureGlobal(t)

	Err(errTest("backend down")).Msg("call failed")

	m := decodeLine(t, buf)
	if m["level"] != "error" || m["error"] != "backend down" {
		t.Errorf("unexpected entry: %v", m)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
