// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide; it caches struct
// metadata and reports field names by their json tag so messages match the
// API payloads:
//
//	type BlockRequest struct {
//	    IP       string `json:"ip" validate:"required,ip"`
//	    Priority int    `json:"priority" validate:"gte=0"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    return verr.ToModelError() // *models.ValidationError
//	}
//
// Custom tags:
//   - ruleid: letters, digits, '_', '-' and '.', at most 64 characters
//   - condop: a supported rule condition operator
//   - actiontype: a supported response action type
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/tripwire/internal/models"
)

// Operators accepted by the condop tag.
var Operators = []string{"==", "!=", ">", "<", ">=", "<=", "contains", "in"}

var ruleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

func (e FieldError) Error() string {
	return e.Message
}

// RequestValidationError collects the failures for one struct.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, fe := range ve.Fields {
		messages[i] = fe.Message
	}
	return strings.Join(messages, "; ")
}

// ToModelError converts the failures to the pipeline's ValidationError.
// The first failing field is reported; the reason lists every message.
func (ve *RequestValidationError) ToModelError() *models.ValidationError {
	if len(ve.Fields) == 0 {
		return models.NewValidationError("", "validation failed")
	}
	return models.NewValidationError(ve.Fields[0].Field, ve.Error())
}

// GetValidator returns the singleton validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// Registration only fails for empty tags or nil funcs.
		_ = validate.RegisterValidation("ruleid", func(fl validator.FieldLevel) bool {
			return ruleIDPattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("condop", func(fl validator.FieldLevel) bool {
			op := fl.Field().String()
			for _, known := range Operators {
				if op == known {
					return true
				}
			}
			return false
		})
		_ = validate.RegisterValidation("actiontype", func(fl validator.FieldLevel) bool {
			return models.ActionType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// ValidateStruct validates s. It returns nil on success.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Field:   namespaceField(fe.Namespace()),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return &RequestValidationError{Fields: out}
}

// namespaceField strips the root struct name from a validator namespace,
// e.g. "Rule.conditions[0].operator" -> "conditions[0].operator".
func namespaceField(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

var errorMessageTemplates = map[string]string{
	"required":   "%s is required",
	"ip":         "%s must be a valid IP address",
	"url":        "%s must be a valid URL",
	"ruleid":     "%s may only contain letters, digits, '_', '-' and '.' (max 64)",
	"condop":     "%s must be one of: " + strings.Join(Operators, " "),
	"actiontype": "%s must be one of: block_ip rate_limit alert create_incident log",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field := namespaceField(fe.Namespace())

	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, field, fe.Param())
	}

	isCollection := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map
	switch fe.Tag() {
	case "min":
		if isCollection {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isCollection {
			return fmt.Sprintf("%s must contain at most %s item(s)", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
