package domain

import (
	"errors"
	"strings"
)

var (
	// ErrUserNotFound is returned when the submitting user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrTestCodeNotFound indicates the test code is not registered.
	ErrTestCodeNotFound = errors.New("test code not found")
	// ErrScoreNotFound is returned when no score record exists for a (testCode, user) pair.
	ErrScoreNotFound = errors.New("score record not found")
	// ErrInvalidAttempt is the target for errors.Is checks on ValidationError.
	ErrInvalidAttempt = errors.New("invalid quiz attempt")
	// ErrPersistence marks failures of the history append, the only fatal store step.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError lists the fields of an attempt or test code that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidAttempt.Error()
	}
	return ErrInvalidAttempt.Error() + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidAttempt
}
