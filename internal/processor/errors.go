package processor

import "errors"

var (
	ErrNilStore     = errors.New("store cannot be nil")
	ErrNilProvider  = errors.New("llm provider cannot be nil")
	ErrNilRelay     = errors.New("notification relay cannot be nil")
	ErrNilSubmitter = errors.New("task submitter cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")

	// ErrMissingRefs is returned for records without the user or lesson
	// they must act on.
	ErrMissingRefs = errors.New("task is missing user or lesson reference")

	// ErrInvalidInput is returned for input_data that cannot be processed.
	ErrInvalidInput = errors.New("invalid task input")

	// ErrQuizState wraps the error_message of a quiz session that ended in
	// a soft error. The learner has already been notified.
	ErrQuizState = errors.New("quiz session error")
)
