// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package models

import (
	"strconv"
	"strings"
	"time"
)

// Well-known ThreatEvent field names referenced by rules.
const (
	FieldSourceIP    = "source_ip"
	FieldProtocol    = "protocol"
	FieldAttackType  = "attack_type"
	FieldTimestamp   = "timestamp"
	FieldThreatScore = "threat_score"
	FieldThreatLevel = "threat_level"
	FieldConfidence  = "confidence"
	FieldEventCount  = "event_count"
	FieldThreatType  = "threat_type"
)

// Subscores are the independently sourced 0-100 inputs to the composite score.
// A nil pointer means the input is absent.
type Subscores struct {
	Reputation *float64 `json:"reputation,omitempty"`
	Geo        *float64 `json:"geo,omitempty"`
	Feeds      *float64 `json:"feeds,omitempty"`
	Trend      *float64 `json:"trend,omitempty"`
}

// Empty reports whether no subscore is present.
func (s *Subscores) Empty() bool {
	return s == nil || (s.Reputation == nil && s.Geo == nil && s.Feeds == nil && s.Trend == nil)
}

// ThreatEvent is a scored observation about a source IP.
// Events are immutable once created; use WithField to derive an enriched copy.
type ThreatEvent struct {
	ID         string         `json:"id"`
	SourceIP   string         `json:"source_ip" validate:"required,ip"`
	Protocol   string         `json:"protocol,omitempty"`
	AttackType string         `json:"attack_type,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Subscores  *Subscores     `json:"subscores,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// eventAccessors maps the struct-backed field names to their values.
// Anything not listed here is looked up in Fields.
var eventAccessors = map[string]func(*ThreatEvent) (any, bool){
	FieldSourceIP: func(e *ThreatEvent) (any, bool) {
		return e.SourceIP, e.SourceIP != ""
	},
	FieldProtocol: func(e *ThreatEvent) (any, bool) {
		return e.Protocol, e.Protocol != ""
	},
	FieldAttackType: func(e *ThreatEvent) (any, bool) {
		return e.AttackType, e.AttackType != ""
	},
	FieldTimestamp: func(e *ThreatEvent) (any, bool) {
		return e.Timestamp.Unix(), !e.Timestamp.IsZero()
	},
}

// Field returns the named field. The second result is false when the field is absent.
func (e *ThreatEvent) Field(name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	if get, ok := eventAccessors[name]; ok {
		return get(e)
	}
	v, ok := e.Fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Number returns the named field coerced to float64.
func (e *ThreatEvent) Number(name string) (float64, bool) {
	v, ok := e.Field(name)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// ThreatScore returns the event's threat_score field, or 0 when absent.
func (e *ThreatEvent) ThreatScore() float64 {
	score, _ := e.Number(FieldThreatScore)
	return score
}

// WithField returns a copy of the event with the named field set.
func (e *ThreatEvent) WithField(name string, value any) *ThreatEvent {
	cp := e.Clone()
	if cp.Fields == nil {
		cp.Fields = make(map[string]any, 1)
	}
	cp.Fields[name] = value
	return cp
}

// Clone returns a copy that shares no mutable state with e.
func (e *ThreatEvent) Clone() *ThreatEvent {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Fields != nil {
		cp.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			cp.Fields[k] = v
		}
	}
	if e.Subscores != nil {
		s := *e.Subscores
		cp.Subscores = &s
	}
	return &cp
}

// ToFloat coerces numeric values and numeric strings to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
