// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package scoring

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tomtom215/tripwire/internal/models"
)

func f(v float64) *float64 { return &v }

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    models.Subscores
		want  float64
		level models.Severity
	}{
		{
			name:  "all present",
			in:    models.Subscores{Reputation: f(90), Geo: f(50), Feeds: f(100), Trend: f(40)},
			want:  90*0.3 + 50*0.2 + 100*0.3 + 40*0.2,
			level: models.SeverityHigh,
		},
		{
			name:  "none present",
			in:    models.Subscores{},
			want:  0,
			level: models.SeverityLow,
		},
		{
			name:  "single input takes full weight",
			in:    models.Subscores{Feeds: f(85)},
			want:  85,
			level: models.SeverityCritical,
		},
		{
			name:  "renormalized over reputation and geo",
			in:    models.Subscores{Reputation: f(100), Geo: f(50)},
			want:  100*0.6 + 50*0.4,
			level: models.SeverityCritical,
		},
		{
			name:  "out of range inputs are clamped",
			in:    models.Subscores{Reputation: f(250), Trend: f(-30)},
			want:  100 * 0.6,
			level: models.SeverityHigh,
		},
		{
			name:  "NaN treated as zero",
			in:    models.Subscores{Geo: f(math.NaN())},
			want:  0,
			level: models.SeverityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in)
			if math.Abs(got.Value-tt.want) > 0.01 {
				t.Errorf("Score() value = %v, want %v", got.Value, tt.want)
			}
			if got.Level != tt.level {
				t.Errorf("Score() level = %s, want %s", got.Level, tt.level)
			}
		})
	}
}

func TestLevelFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  models.Severity
	}{
		{100, models.SeverityCritical},
		{80, models.SeverityCritical},
		{79.99, models.SeverityHigh},
		{60, models.SeverityHigh},
		{59.9, models.SeverityMedium},
		{40, models.SeverityMedium},
		{39.99, models.SeverityLow},
		{0, models.SeverityLow},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestScoreDeterministicAndBounded(t *testing.T) {
	t.Parallel()

	values := []float64{0, 12.5, 40, 59.99, 80, 100}
	for _, rep := range values {
		for _, geo := range values {
			for _, feeds := range values {
				in := models.Subscores{Reputation: f(rep), Geo: f(geo), Feeds: f(feeds), Trend: f(feeds / 2)}
				a, b := Score(in), Score(in)
				if a.Value != b.Value || a.Level != b.Level {
					t.Fatalf("Score not deterministic for %v/%v/%v", rep, geo, feeds)
				}
				if a.Value < 0 || a.Value > 100 {
					t.Fatalf("Score out of bounds: %v", a.Value)
				}
			}
		}
	}
}

func TestRemovingInputNeverExceedsRenormalizedShare(t *testing.T) {
	t.Parallel()

	full := Score(models.Subscores{Reputation: f(70), Geo: f(20), Feeds: f(90), Trend: f(10)})
	partial := Score(models.Subscores{Reputation: f(70), Feeds: f(90), Trend: f(10)})

	for _, c := range partial.Components {
		var base float64
		switch c.Name {
		case "reputation", "feeds":
			base = 0.30
		case "trend":
			base = 0.20
		}
		want := base / 0.80
		if math.Abs(c.Weight-want) > 1e-9 {
			t.Errorf("%s weight = %v, want renormalized %v", c.Name, c.Weight, want)
		}
	}
	if len(full.Components) != 4 || len(partial.Components) != 3 {
		t.Errorf("unexpected component counts: %d, %d", len(full.Components), len(partial.Components))
	}
}

func TestEnricher(t *testing.T) {
	t.Parallel()

	provider := NewStaticProvider()
	provider.Set("203.0.113.9", models.Subscores{Reputation: f(100), Geo: f(100)})

	tests := []struct {
		name      string
		provider  Provider
		event     *models.ThreatEvent
		wantScore float64
		wantSet   bool
	}{
		{
			name:      "provider only",
			provider:  provider,
			event:     &models.ThreatEvent{SourceIP: "203.0.113.9"},
			wantScore: 100,
			wantSet:   true,
		},
		{
			name:     "event subscore overrides provider",
			provider: provider,
			event: &models.ThreatEvent{
				SourceIP:  "203.0.113.9",
				Subscores: &models.Subscores{Geo: f(0)},
			},
			wantScore: 60, // reputation 100 * 0.6 + geo 0 * 0.4
			wantSet:   true,
		},
		{
			name:      "existing threat score untouched",
			provider:  provider,
			event:     &models.ThreatEvent{SourceIP: "203.0.113.9", Fields: map[string]any{"threat_score": 12}},
			wantScore: 12,
			wantSet:   true,
		},
		{
			name:     "provider error degrades to absent",
			provider: ProviderFunc(func(context.Context, string) (models.Subscores, error) { return models.Subscores{}, errors.New("feed down") }),
			event:    &models.ThreatEvent{SourceIP: "198.51.100.7"},
			wantSet:  false,
		},
		{
			name:    "nil provider and no subscores",
			event:   &models.ThreatEvent{SourceIP: "198.51.100.7"},
			wantSet: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewEnricher(tt.provider).Enrich(context.Background(), tt.event)
			got, ok := out.Number(models.FieldThreatScore)
			if ok != tt.wantSet {
				t.Fatalf("threat_score present = %v, want %v", ok, tt.wantSet)
			}
			if ok && math.Abs(got-tt.wantScore) > 0.01 {
				t.Errorf("threat_score = %v, want %v", got, tt.wantScore)
			}
			if _, mutated := tt.event.Fields[models.FieldThreatLevel]; mutated {
				t.Error("input event must not be mutated")
			}
		})
	}
}
