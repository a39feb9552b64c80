package msgdispatch

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validator checks decoded payloads before they reach a consumer.
type Validator interface {
	// Validate returns an error describing why v is invalid, or nil.
	Validate(v any) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(v any) error

// Validate implements Validator.
func (f ValidatorFunc) Validate(v any) error {
	return f(v)
}

// OzzoValidator validates payloads implementing validation.Validatable.
// Other values pass unchanged.
type OzzoValidator struct{}

// Validate implements Validator.
func (OzzoValidator) Validate(v any) error {
	return validation.Validate(v)
}

// NoopValidator accepts everything.
type NoopValidator struct{}

// Validate implements Validator.
func (NoopValidator) Validate(any) error { return nil }
