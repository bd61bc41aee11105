// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package scoring combines independently sourced subscores into the composite
// 0-100 threat score used by rule conditions.
//
// Weights are fixed: reputation 30%, geolocation 20%, threat feeds 30%,
// behavioral trend 20%. Missing subscores are excluded and the remaining
// weights are renormalized, so a partial-information event is not penalized
// for what was never looked up.
package scoring

import (
	"math"

	"github.com/tomtom215/tripwire/internal/models"
)

// Fixed subscore weights.
const (
	WeightReputation = 0.30
	WeightGeo        = 0.20
	WeightFeeds      = 0.30
	WeightTrend      = 0.20
)

// Level thresholds, checked in descending order.
var levelThresholds = []struct {
	min   float64
	level models.Severity
}{
	{80, models.SeverityCritical},
	{60, models.SeverityHigh},
	{40, models.SeverityMedium},
	{0, models.SeverityLow},
}

// Component is one subscore's share of the composite.
type Component struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"` // renormalized
}

// Result is a composite score.
type Result struct {
	Value      float64         `json:"value"`
	Level      models.Severity `json:"level"`
	Components []Component     `json:"components,omitempty"`
}

// Score computes the composite score. It is pure: identical inputs always
// yield identical results. With no subscores present the score is 0 (low).
func Score(s models.Subscores) Result {
	inputs := []struct {
		name   string
		value  *float64
		weight float64
	}{
		{"reputation", s.Reputation, WeightReputation},
		{"geo", s.Geo, WeightGeo},
		{"feeds", s.Feeds, WeightFeeds},
		{"trend", s.Trend, WeightTrend},
	}

	var totalWeight float64
	for _, in := range inputs {
		if in.value != nil {
			totalWeight += in.weight
		}
	}
	if totalWeight == 0 {
		return Result{Value: 0, Level: models.SeverityLow}
	}

	var sum float64
	components := make([]Component, 0, len(inputs))
	for _, in := range inputs {
		if in.value == nil {
			continue
		}
		v := clamp(*in.value)
		w := in.weight / totalWeight
		sum += v * w
		components = append(components, Component{Name: in.name, Value: v, Weight: w})
	}

	value := clamp(math.Round(sum*100) / 100)
	return Result{Value: value, Level: LevelFor(value), Components: components}
}

// LevelFor maps a 0-100 score to its qualitative level.
func LevelFor(score float64) models.Severity {
	for _, th := range levelThresholds {
		if score >= th.min {
			return th.level
		}
	}
	return models.SeverityLow
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
