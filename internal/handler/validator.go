package handler

import (
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewValidator returns a validator that reports json field names and knows
// the "slug" rule used for catalog keys.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// formatValidationErrors maps each failing field to the rule it broke.
func formatValidationErrors(err error) map[string]string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		rule := e.Tag()
		if e.Param() != "" {
			rule += "=" + e.Param()
		}
		out[e.Field()] = rule
	}
	return out
}

// validationMessage builds the one-line error text for a failed request.
func validationMessage(fields map[string]string) string {
	if len(fields) == 0 {
		return "Validation failed"
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "Invalid or missing fields: " + strings.Join(names, ", ")
}
