package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator is a wrapper around the actual validator.
// It sets up the validator and turns field errors into readable messages.
type Validator struct {
	validator *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validator: validator.New(validator.WithRequiredStructEnabled())}
}

// NewPipelineValidator returns a validator with the pipeline request rules registered.
func NewPipelineValidator() *Validator {
	v := NewValidator()
	v.Register(NewPipelineValidationRules()...)
	return v
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, validationRule := range rules {
		validationRule.Rule(v.validator)
	}
}

func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return NewErrInvalidField("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "media_url":
		return fmt.Sprintf("%s must be an http or https url", fe.Namespace())
	case "json_object":
		return fmt.Sprintf("%s must be a json object", fe.Namespace())
	case "job_id":
		return fmt.Sprintf("%s must be 1 to 64 letters, digits, '.', '_' or '-'", fe.Namespace())
	case "oneof", "energy_level", "aspect_ratio":
		return fmt.Sprintf("%s has an unsupported value %q", fe.Namespace(), fe.Value())
	default:
		return fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag())
	}
}
