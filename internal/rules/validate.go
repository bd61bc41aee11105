// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package rules

import (
	"fmt"
	"time"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/validation"
)

// ValidateRule checks a rule definition. It returns a *models.ValidationError
// describing the first problem found.
func ValidateRule(r *Rule) error {
	if r == nil {
		return models.NewValidationError("", "rule is required")
	}
	if verr := validation.ValidateStruct(r); verr != nil {
		return verr.ToModelError()
	}

	for i := range r.Conditions {
		if err := validateCondition(i, &r.Conditions[i]); err != nil {
			return err
		}
	}
	for i, a := range r.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		switch a.Type {
		case models.ActionRateLimit:
			if a.RatePerMinute <= 0 {
				return models.NewValidationError(field+".rate_per_minute", "rate_limit requires a positive rate_per_minute")
			}
		case models.ActionBlockIP:
			if a.RatePerMinute != 0 {
				return models.NewValidationError(field+".rate_per_minute", "only valid for rate_limit")
			}
		}
	}
	if r.ActiveHours != nil && r.ActiveHours.Timezone != "" {
		if _, err := time.LoadLocation(r.ActiveHours.Timezone); err != nil {
			return models.NewValidationError("active_hours.timezone", err.Error())
		}
	}
	return nil
}

func validateCondition(i int, c *Condition) error {
	field := fmt.Sprintf("conditions[%d].value", i)
	if c.Value == nil {
		return models.NewValidationError(field, "value is required")
	}
	switch c.Operator {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		if _, ok := models.ToFloat(c.Value); !ok {
			return models.NewValidationError(field, fmt.Sprintf("operator %s requires a numeric value", c.Operator))
		}
	case OpIn:
		_, isSeq := sequence(c.Value)
		_, isStr := c.Value.(string)
		if !isSeq && !isStr {
			return models.NewValidationError(field, "operator in requires a list or string value")
		}
	}
	return nil
}
