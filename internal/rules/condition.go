// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package rules

import (
	"fmt"
	"strings"

	"github.com/tomtom215/tripwire/internal/models"
)

// Evaluate applies the condition to event. A field absent from the event
// never matches, and values that cannot be compared make the condition false.
func (c *Condition) Evaluate(event *models.ThreatEvent) bool {
	actual, ok := event.Field(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEqual:
		return equal(actual, c.Value)
	case OpNotEqual:
		return !equal(actual, c.Value)
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return compare(c.Operator, actual, c.Value)
	case OpContains:
		return contains(actual, c.Value)
	case OpIn:
		return contains(c.Value, actual)
	default:
		return false
	}
}

func compare(op Operator, actual, expected any) bool {
	a, ok := models.ToFloat(actual)
	if !ok {
		return false
	}
	b, ok := models.ToFloat(expected)
	if !ok {
		return false
	}
	switch op {
	case OpGreater:
		return a > b
	case OpLess:
		return a < b
	case OpGreaterEqual:
		return a >= b
	case OpLessEqual:
		return a <= b
	}
	return false
}

// equal compares numerically when both sides coerce, else by string form.
func equal(a, b any) bool {
	if fa, ok := models.ToFloat(a); ok {
		if fb, ok := models.ToFloat(b); ok {
			return fa == fb
		}
	}
	if _, ok := sequence(a); ok {
		return false
	}
	if _, ok := sequence(b); ok {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// contains reports whether container holds item: substring for strings,
// element equality for sequences.
func contains(container, item any) bool {
	if s, ok := container.(string); ok {
		needle, ok := item.(string)
		if !ok {
			if _, isSeq := sequence(item); isSeq || item == nil {
				return false
			}
			needle = fmt.Sprint(item)
		}
		return strings.Contains(s, needle)
	}
	elems, ok := sequence(container)
	if !ok {
		return false
	}
	for _, e := range elems {
		if equal(e, item) {
			return true
		}
	}
	return false
}

// sequence converts the slice shapes produced by JSON decoding and Go callers.
func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}
