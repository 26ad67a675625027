package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	// ErrJobTerminal is returned when a write targets a job that already reached a
	// terminal status.
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned when a guarded write does not match the current
	// state of an active job, e.g. a progress regression.
	ErrInvalidTransition = errors.New("invalid job transition")
)
