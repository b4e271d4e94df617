package application

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	registry "fuel-registry/internal/registry/domain"

	"github.com/go-playground/validator/v10"
)

// ValidationResult lists submission problems keyed by json field path.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Err returns a ValidationError for an invalid result, nil otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Fields: r.FieldErrors}
}

// Validator checks submissions before they reach the writer.
type Validator struct {
	validate *validator.Validate
}

// NewValidator constructs a validator with the registry rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("liters", func(fl validator.FieldLevel) bool {
		value, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
		return err == nil && value >= 0
	})
	return &Validator{validate: v}
}

// Validate checks a station submission.
func (v *Validator) Validate(sub registry.Submission) ValidationResult {
	return v.check(sub)
}

// ValidateAnalysis checks an analysis input.
func (v *Validator) ValidateAnalysis(input registry.AnalysisInput) ValidationResult {
	return v.check(input)
}

func (v *Validator) check(target any) ValidationResult {
	err := v.validate.Struct(target)
	if err == nil {
		return ValidationResult{Valid: true}
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationResult{FieldErrors: map[string]string{"_": err.Error()}}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return ValidationResult{FieldErrors: fields}
}

// fieldPath drops the struct name prefix of a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
