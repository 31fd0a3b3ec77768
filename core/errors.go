package core

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is returned when data is rejected at a write boundary.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

// NewFieldValidationError builds a ValidationError carrying a single field error.
func NewFieldValidationError(err error, field string) error {
	return &ValidationError{Err: err, Fields: []FieldError{{Field: field, Error: err.Error()}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

// FromValidatorErrors converts validator errors into a ValidationError using the app translator.
func FromValidatorErrors(err error) error {
	verrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, verr := range verrs {
		msg := verr.Error()
		if Translator != nil {
			msg = verr.Translate(Translator)
		}
		flds = append(flds, FieldError{Field: verr.Field(), Error: msg})
	}
	return &ValidationError{Err: fmt.Errorf("invalid data: %d field(s)", len(flds)), Fields: flds}
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
