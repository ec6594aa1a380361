package config

import "errors"

// Sentinel errors returned by Load, grounded on pkg/config/errors.go's
// wrapper-error vocabulary.
var (
	ErrConfigNotFound   = errors.New("config file not found")
	ErrInvalidYAML      = errors.New("invalid config YAML")
	ErrValidationFailed = errors.New("config validation failed")
)

// FieldError reports a single invalid or missing config field as a
// Field/Err pair, modeled on pkg/config/errors.go's ValidationError.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

func newFieldError(field, msg string) *FieldError {
	return &FieldError{Field: field, Err: errors.New(msg)}
}
