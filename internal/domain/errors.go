package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrConflict          = errors.New("conflict")
)

// TransitionError names the rule a rejected state change violated.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func (e TransitionError) Error() string {
	if e.From == "" && e.To == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s -> %s)", e.Reason, e.From, e.To)
}

func (e TransitionError) Unwrap() error { return ErrInvalidTransition }

// PermissionError reports the capability the actor was missing.
type PermissionError struct {
	Actor  string
	Reason string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

func (e PermissionError) Unwrap() error { return ErrPermissionDenied }

// PersistenceError wraps a storage fault raised while applying writes.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// Invalid returns an ErrInvalidArgument with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
