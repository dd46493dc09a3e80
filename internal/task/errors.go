package task

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned for task types without a registered processor.
	ErrUnknownType = errors.New("unknown task type")

	// ErrTaskInFlight is returned when a pending or processing task already
	// exists for the same type, user and lesson.
	ErrTaskInFlight = errors.New("a task is already in progress")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf formats a permanent error.
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsPermanent reports whether err or anything it wraps was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
