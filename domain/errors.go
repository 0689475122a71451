package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrStorage           = errors.New("storage error")
	ErrStaleEntry        = errors.New("stale entry")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTimeout           = errors.New("timeout")
)

// Error carries a kind, a message fit for display, and the underlying cause if any.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func NewError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Message returns the display message of err, falling back to err.Error().
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func Validation(format string, args ...any) *Error {
	return NewError(ErrValidation, format, args...)
}

func NotFound(what string, id uint) *Error {
	return NewError(ErrNotFound, "%s %d not found", what, id)
}
