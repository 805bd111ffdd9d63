// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package validation wraps go-playground/validator v10 with a shared instance
// and readable messages. Configuration structs are checked with it at load
// time so a misconfigured player fails fast instead of playing unsynced.
//
//	type SyncConfig struct {
//	    Port   int    `validate:"min=1,max=65535"`
//	    Broker string `validate:"omitempty,broker_url"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    return fmt.Errorf("invalid configuration: %w", err)
//	}
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// brokerSchemes are the URL schemes the NATS client accepts.
var brokerSchemes = map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}

// FieldError is a single failed rule.
type FieldError struct {
	namespace string
	field     string
	tag       string
	param     string
	value     interface{}
	message   string
}

// Namespace is the dotted path to the field, e.g. "Config.Sync.Port".
func (e *FieldError) Namespace() string { return e.namespace }

func (e *FieldError) Field() string { return e.field }

func (e *FieldError) Tag() string { return e.tag }

// Param is the rule parameter, "65535" for "max=65535".
func (e *FieldError) Param() string { return e.param }

func (e *FieldError) Value() interface{} { return e.value }

func (e *FieldError) Error() string { return e.message }

// Error collects every failed rule of one ValidateStruct call.
type Error struct {
	errors []FieldError
}

// Errors returns the individual failures in declaration order.
func (ve *Error) Errors() []FieldError {
	return ve.errors
}

func (ve *Error) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for i := range ve.errors {
		messages = append(messages, ve.errors[i].Error())
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		//nolint:errcheck // tag name and func are static
		validate.RegisterValidation("broker_url", validateBrokerURL)
	})
	return validate
}

// ValidateStruct checks s against its validate tags. It returns nil on
// success so callers can compare against nil without a typed-nil trap.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Error{errors: []FieldError{{field: "unknown", tag: "unknown", message: err.Error()}}}
	}

	fieldErrors := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = FieldError{
			namespace: fe.Namespace(),
			field:     fe.Field(),
			tag:       fe.Tag(),
			param:     fe.Param(),
			value:     fe.Value(),
			message:   translateError(fe),
		}
	}
	return &Error{errors: fieldErrors}
}

func validateBrokerURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	return brokerSchemes[strings.ToLower(u.Scheme)]
}

var errorMessageTemplates = map[string]string{
	"required":             "%s is required",
	"url":                  "%s must be a valid URL",
	"hostname_rfc1123":     "%s must be a valid host name",
	"broker_url":           "%s must be a nats://, tls://, ws:// or wss:// URL",
	"hostname_port":        "%s must be host:port",
	"required_without_all": "%s is required",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field := fe.Namespace()
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, field, fe.Param())
	}
	return translateMinMax(fe, field)
}

func translateMinMax(fe validator.FieldError, field string) string {
	isString := fe.Kind().String() == "string"

	switch fe.Tag() {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
