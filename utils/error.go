package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError rejects bad input synchronously; nothing was written.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransitionError rejects an invalid status change; no side effects were performed.
type TransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition %s -> %s: %s", e.Entity, e.From, e.To, e.Reason)
}

func NewTransitionError(entity, from, to, reason string) error {
	return &TransitionError{Entity: entity, From: from, To: to, Reason: reason}
}

func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
