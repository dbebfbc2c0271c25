// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package validation checks request bodies and viewer identities with
// go-playground/validator v10.
//
// One validator is shared process-wide. Field names in errors are the JSON
// names, so a message can be shown to an API caller as is. The package adds
// one custom tag, transposition_key, which accepts the canonical instrument
// keys and rejects Unknown:
//
//	type ViewerContext struct {
//	    ViewerID         string           `json:"viewer_id" validate:"required,max=128"`
//	    TranspositionKey TranspositionKey `json:"transposition_key" validate:"required,transposition_key"`
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/setlist/internal/models"
)

// CodeValidation is the API error code for every validation failure.
const CodeValidation = "VALIDATION_ERROR"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is one failed field.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field is the JSON name of the failed field.
func (e *ValidationError) Field() string { return e.field }

// Tag is the rule that failed, e.g. "max".
func (e *ValidationError) Tag() string { return e.tag }

// Param is the rule argument, e.g. "128" for max=128.
func (e *ValidationError) Param() string { return e.param }

// Value is the rejected value.
func (e *ValidationError) Value() interface{} { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of one struct.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the failed fields in struct order.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(ve.errors))
	for i := range ve.errors {
		parts[i] = ve.errors[i].message
	}
	return strings.Join(parts, "; ")
}

// APIError carries the fields of models.APIError.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError shapes the failure for an API error envelope. A single field
// reports its own details; several fields are listed under "fields".
func (ve *RequestValidationError) ToAPIError() *APIError {
	switch len(ve.errors) {
	case 0:
		return &APIError{Code: CodeValidation, Message: "Validation failed"}
	case 1:
		fe := ve.errors[0]
		return &APIError{
			Code:    CodeValidation,
			Message: fe.message,
			Details: map[string]interface{}{
				"field": fe.field,
				"tag":   fe.tag,
				"value": fe.value,
			},
		}
	}

	fields := make([]map[string]interface{}, 0, len(ve.errors))
	messages := make([]string, 0, len(ve.errors))
	for _, fe := range ve.errors {
		fields = append(fields, map[string]interface{}{
			"field":   fe.field,
			"tag":     fe.tag,
			"message": fe.message,
		})
		messages = append(messages, fe.field+": "+fe.message)
	}
	return &APIError{
		Code:    CodeValidation,
		Message: strings.Join(messages, "; "),
		Details: map[string]interface{}{"fields": fields},
	}
}

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonFieldName)
		if err := v.RegisterValidation("transposition_key", isViewerKey); err != nil {
			panic(fmt.Sprintf("validation: register transposition_key: %v", err))
		}
		validate = v
	})
	return validate
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// isViewerKey accepts canonical keys. Unknown classifies files, never a
// viewer's instrument.
func isViewerKey(fl validator.FieldLevel) bool {
	k := models.TranspositionKey(fl.Field().String())
	return k != models.KeyUnknown && k.Valid()
}

// ValidateStruct validates s and returns nil when it passes.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{errors: []ValidationError{{
			field:   "unknown",
			tag:     "unknown",
			message: err.Error(),
		}}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: message(fe),
		})
	}
	return &RequestValidationError{errors: out}
}

// message renders a field error for API callers.
func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "transposition_key":
		return fmt.Sprintf("%s must be one of: %s", field, viewerKeyList())
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func viewerKeyList() string {
	keys := make([]string, 0, len(models.TranspositionKeys()))
	for _, k := range models.TranspositionKeys() {
		if k != models.KeyUnknown {
			keys = append(keys, string(k))
		}
	}
	return strings.Join(keys, " ")
}
