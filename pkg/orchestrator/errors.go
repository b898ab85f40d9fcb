package orchestrator

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an orchestrator error.
type ErrorClass string

const (
	// ErrorClassConflict indicates a state-machine guard was violated:
	// duplicate stack key, in-flight operation, or invalid transition.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassNotFound indicates an unknown tenant, environment config,
	// or deployment record.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassValidation indicates invalid caller input, such as a destroy
	// request without confirmation or a config rejected by policy.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassRemote indicates a failure from the provisioning backend.
	ErrorClassRemote ErrorClass = "remote"

	// ErrorClassInternal indicates an unexpected failure in the orchestrator
	// or its record store.
	ErrorClassInternal ErrorClass = "internal"
)

// Error represents a classified orchestrator error with context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Code is an optional error code for programmatic handling.
	Code string

	// StackName is the stack key the error relates to, if applicable.
	StackName string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StackName != "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s (stack=%s): %v", e.Class, e.Message, e.StackName, e.Err)
		}
		return fmt.Sprintf("[%s] %s (stack=%s)", e.Class, e.Message, e.StackName)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// WithStack adds the stack key to an error.
func (e *Error) WithStack(stackName string) *Error {
	e.StackName = stackName
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *Error {
	return &Error{Class: ErrorClassNotFound, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewRemoteError creates a new remote error.
func NewRemoteError(message string, err error) *Error {
	return &Error{Class: ErrorClassRemote, Message: message, Err: err}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *Error {
	return &Error{Class: ErrorClassInternal, Message: message, Err: err}
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsNotFound returns true if the error is classified as not-found.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassNotFound
	}
	return false
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsRemote returns true if the error is classified as a remote error.
func IsRemote(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassRemote
	}
	return false
}

// Common error codes.
const (
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
	ErrCodeInFlight        = "OPERATION_IN_FLIGHT"
	ErrCodeDestroyFirst    = "DESTROY_FIRST"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConfirmRequired = "CONFIRM_REQUIRED"
	ErrCodePolicyDenied    = "POLICY_DENIED"
	ErrCodeNotDeletable    = "NOT_DELETABLE"
	ErrCodeTriggerFailed   = "TRIGGER_FAILED"
)
