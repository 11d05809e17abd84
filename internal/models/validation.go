// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects field failures. It is returned as a value so
// callers can range over it and still use it as an error.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed any rule.
func (v ValidationErrors) Has(field string) bool {
	for _, fe := range v {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Add records a failure found outside the struct rules, such as a clash
// with an existing record.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterStructValidation(validateLicenseStruct, PluginLicense{})
		validate = v
	})
	return validate
}

func validateLicenseStruct(sl validator.StructLevel) {
	l := sl.Current().Interface().(PluginLicense)

	if l.PluginID == 0 && strings.TrimSpace(l.PluginHandle) == "" {
		sl.ReportError(l.PluginHandle, "plugin", "PluginHandle", "plugin_required", "")
	}
	if l.EditionID == 0 && strings.TrimSpace(l.Edition) == "" {
		sl.ReportError(l.Edition, "edition", "Edition", "edition_required", "")
	}
	if l.Expirable && l.ExpiresOn == nil {
		sl.ReportError(l.ExpiresOn, "expiresOn", "ExpiresOn", "expirable_requires_date", "")
	}
	if !l.Expirable && l.RenewalPrice != nil {
		sl.ReportError(l.RenewalPrice, "renewalPrice", "RenewalPrice", "not_expirable", "")
	}
	if l.RenewalPrice != nil && l.RenewalPrice.IsNegative() {
		sl.ReportError(l.RenewalPrice, "renewalPrice", "RenewalPrice", "nonnegative_decimal", "")
	}
}

var validationMessages = map[string]func(param string) string{
	"required":                func(string) string { return "is required" },
	"email":                   func(string) string { return "must be a valid email address" },
	"len":                     func(p string) string { return fmt.Sprintf("must be exactly %s characters", p) },
	"max":                     func(p string) string { return fmt.Sprintf("must be at most %s characters", p) },
	"alphanum":                func(string) string { return "must only contain letters and digits" },
	"plugin_required":         func(string) string { return "is required" },
	"edition_required":        func(string) string { return "is required" },
	"expirable_requires_date": func(string) string { return "is required for expirable licenses" },
	"not_expirable":           func(string) string { return "must be empty for licenses that do not expire" },
	"nonnegative_decimal":     func(string) string { return "must not be negative" },
}

// ValidateEmail applies the license email rules to a bare address.
func ValidateEmail(email string) ValidationErrors {
	if strings.TrimSpace(email) == "" {
		return ValidationErrors{{Field: "email", Message: validationMessages["required"]("")}}
	}
	if err := getValidator().Var(email, "email,max=255"); err != nil {
		return ValidationErrors{{Field: "email", Message: validationMessages["email"]("")}}
	}
	return nil
}

// ValidateLicense checks the field rules of a license. It returns nil when
// the license is valid.
func ValidateLicense(l *PluginLicense) ValidationErrors {
	err := getValidator().Struct(l)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "license", Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		message := "is invalid"
		if format, ok := validationMessages[fe.Tag()]; ok {
			message = format(fe.Param())
		}
		out = append(out, FieldError{Field: fe.Field(), Message: message})
	}
	return out
}
