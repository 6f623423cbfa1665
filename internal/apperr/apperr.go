// Package apperr defines the error taxonomy shared by the task orchestration core.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInvalidAssignment Kind = "invalid_assignment"
	KindNotFound          Kind = "not_found"
	KindCommunication     Kind = "communication"
	KindOrchestration     Kind = "orchestration"
)

// FieldError describes a single violated input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the application error type. Err carries the underlying cause, if any.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, msg string, underlying error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: underlying}
}

// Validation reports every violated field at once.
func Validation(msg string, fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Fields: fields}
}

// InvalidAssignment reports a worker that does not exist or cannot take work.
func InvalidAssignment(workerID string, reason string) *Error {
	return &Error{Kind: KindInvalidAssignment, Msg: fmt.Sprintf("invalid assignment to worker %s: %s", workerID, reason)}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s not found: %s", entity, id)}
}

// Communication wraps a messaging failure.
func Communication(msg string, underlying error) *Error {
	return &Error{Kind: KindCommunication, Msg: msg, Err: underlying}
}

// Wrap turns an unexpected dependency failure into an orchestration error.
// Errors that already carry a Kind are returned unchanged.
func Wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindOrchestration, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Collector accumulates field violations.
type Collector struct {
	fields []FieldError
}

// Add records a violation.
func (c *Collector) Add(field, format string, args ...any) {
	c.fields = append(c.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns a validation error when any violation was recorded.
func (c *Collector) Err(msg string) error {
	if len(c.fields) == 0 {
		return nil
	}
	return Validation(msg, c.fields)
}
