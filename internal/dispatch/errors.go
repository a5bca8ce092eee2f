package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// Construction errors.
var (
	ErrNoLookup     = errors.New("dispatch: facility lookup is required")
	ErrNoRecipients = errors.New("dispatch: at least one recipient is required")
	ErrNoAdapters   = errors.New("dispatch: at least one channel adapter is required")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when an incident report is rejected before any
// work is done.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid incident report: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// InternalFault is an unexpected failure of the dispatch logic itself, as
// opposed to a channel delivery failure.
type InternalFault struct {
	Err error
}

func (e *InternalFault) Error() string {
	return "dispatch internal fault: " + e.Err.Error()
}

func (e *InternalFault) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInternal reports whether err is an InternalFault.
func IsInternal(err error) bool {
	var fault *InternalFault
	return errors.As(err, &fault)
}
