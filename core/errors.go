package core

import "github.com/pkg/errors"

var (
	// ErrNotFound is the root of every "not found" error of the domain packages.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the acting user lacks the permission for an operation.
	ErrForbidden = errors.New("permission denied")
	// ErrConflict is returned when an operation conflicts with the current state of a resource.
	ErrConflict = errors.New("conflict")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is a typed "not found" error carrying the missing resource name.
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string {
	return err.Resource + " not found"
}

// Is makes errors.Is(err, ErrNotFound) hold for every NotFoundError.
func (err NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether the cause of err is a "not found" error.
func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	if cause == ErrNotFound {
		return true
	}
	_, ok := cause.(*NotFoundError)
	return ok
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
