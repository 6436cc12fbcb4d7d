package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized        = errors.New("doctor is not allowed to modify this appointment")
	ErrAlreadyFinalized    = errors.New("appointment already cancelled or completed")
	ErrInvalidTargetStatus = errors.New("target status must be Completed or Cancelled")
	ErrPersistence         = errors.New("appointment store unavailable")
)

// AlreadyFinalizedError reports the terminal status an appointment already holds.
type AlreadyFinalizedError struct {
	Status AppointmentStatus
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("appointment already %s", e.Status)
}

func (e *AlreadyFinalizedError) Is(target error) bool {
	return target == ErrAlreadyFinalized
}

// PersistenceError wraps a store failure. Callers may retry the whole operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Retryable() bool {
	return true
}
