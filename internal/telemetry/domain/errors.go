package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a payload is malformed or misses a required field.
	ErrValidation = errors.New("telemetry: invalid reading")
	// ErrCoercion is returned when a numeric field cannot be converted to an integer.
	ErrCoercion = errors.New("telemetry: value not coercible to integer")
	// ErrInternal is returned when recording a reading fails unexpectedly.
	ErrInternal = errors.New("telemetry: internal error")
)

// ValidationError wraps ErrValidation with a detail message.
func ValidationError(detail string) error {
	return fmt.Errorf("%w: %s", ErrValidation, detail)
}

// CoercionError wraps ErrCoercion with the offending field.
func CoercionError(field string, value any) error {
	return fmt.Errorf("%w: %s=%v (%T)", ErrCoercion, field, value, value)
}
