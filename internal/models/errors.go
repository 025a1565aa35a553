// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrProductTypeNotFound = errors.New("product type not found")
	ErrLicenseNotFound     = errors.New("license not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateLicenseKey = errors.New("license key already in use")
)

// FieldError describes why a single field was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation. Nothing is
// written when a save returns one.
type ValidationError struct {
	Entity string       `json:"entity"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

// Has reports whether field failed.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

var (
	handlePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	validate      = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	})
	return v
}

// validationCollector accumulates field errors from validator and from
// hand written rules.
type validationCollector struct {
	entity string
	fields []FieldError
}

func newValidationCollector(entity string) *validationCollector {
	return &validationCollector{entity: entity}
}

func (c *validationCollector) add(field, rule, message string) {
	c.fields = append(c.fields, FieldError{Field: field, Rule: rule, Message: message})
}

func (c *validationCollector) addStruct(s any) {
	err := validate.Struct(s)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.add("", "invalid", err.Error())
		return
	}
	for _, fe := range verrs {
		c.add(fe.Field(), fe.Tag(), fieldMessage(fe))
	}
}

func (c *validationCollector) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Entity: c.entity, Fields: c.fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "cannot be blank"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "uuid4":
		return "must be a UUID"
	case "handle":
		return "must start with a letter and contain only letters, numbers, dashes and underscores"
	default:
		return "failed " + fe.Tag()
	}
}
