// Package errs provides a structured error type hierarchy for the drover CLI.
//
// This package defines base error types for common error conditions, wrapped error
// types that add contextual information, and helper functions for error wrapping
// and type checking.
//
// # Error Types
//
// Base errors (sentinel errors):
//   - ErrNotFound - resource not found
//   - ErrInvalid - validation failed
//   - ErrCanceled - operation canceled
//   - ErrTimeout - deadline exceeded
//   - ErrDrift - workflow document changed since run was recorded
//
// Wrapped error types (add context):
//   - ValidationError{Issues} - document failed structural or semantic validation
//   - ConfigError{Path, Missing, Err} - configuration or unresolved-variable errors
//   - PolicyViolationError{StepID, Dimension, Limit, Actual} - budget breach
//   - ExecutionError{StepID, ExitCode, Err} - executor-reported step failure
//   - PersistenceError{Op, Path, Err} - run store write/read failure
//   - ResumeError{RunID, Err} - run cannot be resumed
//
// # Usage
//
//	// Use sentinel errors directly
//	return errs.ErrNotFound
//
//	// Wrap with context using Wrap
//	return errs.Wrap(err, "loadRunState")
//
//	// Use structured error types
//	return &errs.PersistenceError{Op: "write", Path: statePath, Err: err}
//
//	// Check error types
//	if errs.IsNotFound(err) {
//	    // handle not found
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types (sentinel errors).
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = baseError("not found")

	// ErrInvalid indicates validation failed.
	ErrInvalid = baseError("invalid")

	// ErrCanceled indicates an operation was canceled.
	ErrCanceled = baseError("canceled")

	// ErrTimeout indicates a deadline was exceeded.
	ErrTimeout = baseError("timed out")

	// ErrDrift indicates the workflow document changed since the run was recorded.
	ErrDrift = baseError("workflow definition has changed")
)

// baseError is a string that implements error.
type baseError string

func (e baseError) Error() string { return string(e) }

// Issue is a single validation finding, located by a path into the document.
type Issue struct {
	// Path locates the offending value, e.g. "steps[2].policy.max_edits".
	Path string
	// Message is a human-readable description of the problem.
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidationError reports every structural and semantic problem found in a
// workflow document. Validation collects all issues rather than stopping at
// the first one.
type ValidationError struct {
	// Issues holds all findings, in document order.
	Issues []Issue
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "workflow validation failed"
	case 1:
		return fmt.Sprintf("workflow validation failed: %s", e.Issues[0])
	default:
		return fmt.Sprintf("workflow validation failed with %d issues (first: %s)", len(e.Issues), e.Issues[0])
	}
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// ConfigError represents an error related to configuration or to
// unresolved template variables in a workflow document.
type ConfigError struct {
	// Path is the configuration file path (optional).
	Path string
	// Missing lists unresolved variable names (optional).
	Missing []string
	// Err is the underlying error (optional when Missing is set).
	Err error
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("config: unresolved variables: %s", strings.Join(e.Missing, ", "))
	}
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// PolicyViolationError represents a budget breach detected by the policy
// guard during an agent step. It is never suppressed by on_error and always
// aborts the run.
type PolicyViolationError struct {
	// StepID is the step whose execution breached its policy.
	StepID string
	// Dimension names the breached budget (e.g. "max_files", "allowed_paths").
	Dimension string
	// Limit is the declared budget, rendered for display.
	Limit string
	// Actual is the observed value that breached it.
	Actual string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation in step %q: %s exceeded (limit %s, got %s)",
		e.StepID, e.Dimension, e.Limit, e.Actual)
}

// ExecutionError represents an executor-reported failure of a single step.
type ExecutionError struct {
	// StepID is the step that failed.
	StepID string
	// ExitCode is the subprocess exit code, if the executor ran one (else 0).
	ExitCode int
	// Err is the underlying error.
	Err error
}

func (e *ExecutionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("step %q failed: %s (exit %d)", e.StepID, e.Err, e.ExitCode)
	}
	return fmt.Sprintf("step %q failed: %s", e.StepID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PersistenceError represents a run store failure. A run whose state cannot
// be durably recorded must not continue, so these are always fatal.
type PersistenceError struct {
	// Op is the store operation being performed (e.g. "write", "load").
	Op string
	// Path is the file or directory involved (optional).
	Path string
	// Err is the underlying error.
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("run store %s %s: %s", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("run store %s: %s", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ResumeError represents a run that cannot be resumed: unknown run id,
// unknown step id, or a workflow document that no longer matches the one
// the run was recorded against.
type ResumeError struct {
	// RunID is the run that was requested.
	RunID string
	// Err is the underlying error (wraps ErrNotFound or ErrDrift).
	Err error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("cannot resume run %q: %s", e.RunID, e.Err)
}

func (e *ResumeError) Unwrap() error { return e.Err }

// Wrap adds context to an error by wrapping it with an operation name.
// The returned error implements Unwrap() allowing errors.Is and errors.As
// to work with the wrapped error.
func Wrap(err error, op string) error {
	return &wrappedError{op: op, err: err}
}

// wrappedError is an error with an operation context.
type wrappedError struct {
	op  string
	err error
}

func (e *wrappedError) Error() string { return fmt.Sprintf("%s: %s", e.op, e.err) }
func (e *wrappedError) Unwrap() error { return e.err }

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalid reports whether err is or wraps ErrInvalid.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

// IsCanceled reports whether err is or wraps ErrCanceled.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsTimeout reports whether err is or wraps ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsDrift reports whether err is or wraps ErrDrift.
func IsDrift(err error) bool {
	return errors.Is(err, ErrDrift)
}

// AsValidationError reports whether err can be typed as a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsConfigError reports whether err can be typed as a *ConfigError.
func AsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// AsPolicyViolation reports whether err can be typed as a *PolicyViolationError.
func AsPolicyViolation(err error) (*PolicyViolationError, bool) {
	var pe *PolicyViolationError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// AsExecutionError reports whether err can be typed as an *ExecutionError.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// AsPersistenceError reports whether err can be typed as a *PersistenceError.
func AsPersistenceError(err error) (*PersistenceError, bool) {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// AsResumeError reports whether err can be typed as a *ResumeError.
func AsResumeError(err error) (*ResumeError, bool) {
	var re *ResumeError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
