// Package apperr defines the error taxonomy shared by the capture, store,
// sync and session components.
//
// Every typed error matches one sentinel through errors.Is, so callers can
// branch on the kind without knowing the concrete type:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyRecording = errors.New("already recording")
	ErrTransientSync    = errors.New("transient sync failure")
	ErrRejected         = errors.New("rejected by remote")
)

// ValidationError reports bad caller input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation is shorthand for a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError reports that the requested resource clashes with existing state,
// e.g. a second active session for the same user.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidStateError reports an illegal transition given the current state.
type InvalidStateError struct {
	Resource string
	ID       string
	State    string
	Action   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %q", e.Action, e.Resource, e.ID, e.State)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyRecordingError is returned when a capture is started twice.
type AlreadyRecordingError struct{}

func (e *AlreadyRecordingError) Error() string { return "recorder is already recording" }

func (e *AlreadyRecordingError) Is(target error) bool { return target == ErrAlreadyRecording }

// TransientSyncError wraps a network or server failure that is worth retrying.
type TransientSyncError struct {
	Cause error
}

func (e *TransientSyncError) Error() string {
	return "transient sync failure: " + e.Cause.Error()
}

func (e *TransientSyncError) Unwrap() error { return e.Cause }

func (e *TransientSyncError) Is(target error) bool { return target == ErrTransientSync }

func (e *TransientSyncError) Retryable() bool { return true }

// Classifier is implemented by sync-path errors that know whether a retry can help.
type Classifier interface {
	Retryable() bool
}

// IsRetryable reports whether a sync failure should be retried. Unclassified
// errors are treated as transient: giving up on them would drop captured data.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c Classifier
	if errors.As(err, &c) {
		return c.Retryable()
	}
	return !errors.Is(err, ErrRejected)
}
