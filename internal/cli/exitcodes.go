// Package cli provides Cobra command definitions for drover.
package cli

import (
	"errors"

	"github.com/chazuruo/drover/internal/errs"
)

// Process exit codes. Scripts drive drover by these, so they are part of
// the CLI contract and never change meaning.
const (
	ExitOK              = 0
	ExitError           = 1
	ExitWarnings        = 2
	ExitCanceled        = 13
	ExitStepFailed      = 20
	ExitInvalidWorkflow = 21
	ExitPolicyViolation = 22
	ExitResumeFailed    = 23
)

// exitError carries a specific process exit code to main for outcomes
// that are not expressible as a structured error from the core packages.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCodeFor maps an error returned by a command to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	if _, ok := errs.AsResumeError(err); ok {
		return ExitResumeFailed
	}
	if _, ok := errs.AsPolicyViolation(err); ok {
		return ExitPolicyViolation
	}
	if _, ok := errs.AsValidationError(err); ok {
		return ExitInvalidWorkflow
	}
	if _, ok := errs.AsConfigError(err); ok {
		return ExitInvalidWorkflow
	}
	if errs.IsCanceled(err) {
		return ExitCanceled
	}
	if _, ok := errs.AsExecutionError(err); ok {
		return ExitStepFailed
	}
	return ExitError
}
