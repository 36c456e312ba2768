// Package apperr defines the error kinds shared by the dataset, model and
// search packages. Callers test kinds with errors.Is against the sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind sentinels.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrEncoding    = errors.New("encoding error")
	ErrTraining    = errors.New("training error")
	ErrPersist     = errors.New("persist error")
	ErrDataCorrupt = errors.New("data corrupt")
)

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind error, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// Validation reports bad input.
func Validation(op, format string, args ...any) error {
	return newErr(ErrValidation, op, fmt.Sprintf(format, args...), nil)
}

// NotFound reports an unknown listing id or resource.
func NotFound(op, format string, args ...any) error {
	return newErr(ErrNotFound, op, fmt.Sprintf(format, args...), nil)
}

// Encoding wraps an encoder failure.
func Encoding(op string, cause error) error {
	return newErr(ErrEncoding, op, "", cause)
}

// Training reports a training run that could not produce a bundle.
func Training(op, msg string, cause error) error {
	return newErr(ErrTraining, op, msg, cause)
}

// Persist wraps a failed disk or remote write.
func Persist(op string, cause error) error {
	return newErr(ErrPersist, op, "", cause)
}

// DataCorrupt wraps an unreadable dataset file.
func DataCorrupt(op string, cause error) error {
	return newErr(ErrDataCorrupt, op, "", cause)
}

// KindOf returns the kind sentinel of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrEncoding, ErrTraining, ErrPersist, ErrDataCorrupt} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
