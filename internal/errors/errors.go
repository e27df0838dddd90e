// Package errors provides centralized error definitions and error handling
// utilities for the orchestrator. It defines domain-specific error types,
// sentinel errors, and classification helpers.
//
// The package distinguishes three failure families:
//
//   - SessionStartError: a worker session could not be launched. Fatal for
//     the task that requested it.
//   - StateIOError: the persisted orchestrator state could not be read or
//     written. Fatal for the attempting operation, since the orchestrator
//     cannot safely proceed without a consistent view of its state.
//   - Cleanup failures (kill, existence probes): never surfaced as errors at
//     all; callers swallow and log them, so no type exists for them here.
//
// Webhook delivery failures are typed results, not errors; see the webhook
// package's Result and FailureKind.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience so callers can import
// only this package for error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors.
var (
	// ErrSessionAlreadyRunning indicates a live worker session already exists
	// for the task. Starting a second one would violate the one-session-per-task
	// invariant.
	ErrSessionAlreadyRunning = New("session already running for task")

	// ErrTaskNotFound indicates the task is not present in orchestrator state.
	ErrTaskNotFound = New("task not found")

	// ErrStateCorrupted indicates the persisted state file exists but could
	// not be decoded.
	ErrStateCorrupted = New("state file corrupted")
)

// SessionStartError wraps the underlying launch-command failure when a worker
// session cannot be created, e.g. because the tmux binary is missing. It is
// fatal for the task.
type SessionStartError struct {
	TaskID string
	cause  error
}

// NewSessionStartError creates a SessionStartError for the given task.
func NewSessionStartError(taskID string, cause error) *SessionStartError {
	return &SessionStartError{TaskID: taskID, cause: cause}
}

// Error returns the formatted error message.
func (e *SessionStartError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("session start failed [task=%s]: %v", e.TaskID, e.cause)
	}
	return fmt.Sprintf("session start failed [task=%s]", e.TaskID)
}

// Unwrap returns the underlying launch failure.
func (e *SessionStartError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a SessionStartError or matches the cause.
func (e *SessionStartError) Is(target error) bool {
	if _, ok := target.(*SessionStartError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// StateIOError wraps a read or write failure on the orchestrator state file.
type StateIOError struct {
	Op    string // "load", "save"
	Path  string
	cause error
}

// NewStateIOError creates a StateIOError for the given operation and path.
func NewStateIOError(op, path string, cause error) *StateIOError {
	return &StateIOError{Op: op, Path: path, cause: cause}
}

// Error returns the formatted error message.
func (e *StateIOError) Error() string {
	return fmt.Sprintf("state %s failed [path=%s]: %v", e.Op, e.Path, e.cause)
}

// Unwrap returns the underlying I/O failure.
func (e *StateIOError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StateIOError or matches the cause.
func (e *StateIOError) Is(target error) bool {
	if _, ok := target.(*StateIOError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// IsFatalForTask reports whether the error should terminate processing of the
// task it occurred on. Session-start and state-IO failures are fatal; anything
// else is handled locally by the component that produced it.
func IsFatalForTask(err error) bool {
	if err == nil {
		return false
	}
	var sessionErr *SessionStartError
	var stateErr *StateIOError
	return As(err, &sessionErr) || As(err, &stateErr)
}

// Wrap wraps an error with additional context, preserving the chain for
// errors.Is and errors.As.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
