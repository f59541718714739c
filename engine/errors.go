package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Wrap them with errors.Wrap so KindOf can recover the kind
// after further wrapping.
var (
	ErrValidation = errors.New("validation error")
	ErrResource   = errors.New("resource error")
	ErrModel      = errors.New("model error")
	ErrInternal   = errors.New("internal error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Cause() error { return e.kind }

func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, format string, args ...any) error {
	return errors.WithStack(&kindError{kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Validationf returns a validation error with the given message.
func Validationf(format string, args ...any) error {
	return newKind(ErrValidation, format, args...)
}

// Resourcef returns a resource error with the given message.
func Resourcef(format string, args ...any) error {
	return newKind(ErrResource, format, args...)
}

// Modelf returns a model error with the given message.
func Modelf(format string, args ...any) error {
	return newKind(ErrModel, format, args...)
}

// KindOf reports which of the error kinds err belongs to. Anything
// unrecognized is ErrInternal.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrResource, ErrModel, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	if c := errors.Cause(err); c != err && c != nil {
		return KindOf(c)
	}
	return ErrInternal
}
