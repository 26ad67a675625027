package pipeline

import (
	"errors"
	"fmt"
)

// PermanentError stops the job: it is marked failed and the queue does not retry it.
// Reason is the text shown to clients; Err is the cause, which is only logged.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// TransientError asks the queue for another attempt.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func NewPermanentError(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}

func NewTransientError(reason string, err error) *TransientError {
	return &TransientError{Reason: reason, Err: err}
}

func IsPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

// IsTransient is true for explicit transient errors and for anything unclassified.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}

// Reason extracts the client-facing text of err without its cause.
func Reason(err error) string {
	var perr *PermanentError
	if errors.As(err, &perr) {
		return perr.Reason
	}
	var terr *TransientError
	if errors.As(err, &terr) {
		return terr.Reason
	}
	return "unexpected error"
}
