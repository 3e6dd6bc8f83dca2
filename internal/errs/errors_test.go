package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chazuruo/drover/internal/errs"
)

// TestBaseErrors verifies that all base error types have correct messages.
func TestBaseErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrNotFound", errs.ErrNotFound, "not found"},
		{"ErrInvalid", errs.ErrInvalid, "invalid"},
		{"ErrCanceled", errs.ErrCanceled, "canceled"},
		{"ErrTimeout", errs.ErrTimeout, "timed out"},
		{"ErrDrift", errs.ErrDrift, "workflow definition has changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestValidationError verifies ValidationError formatting and unwrapping.
func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *errs.ValidationError
		want string
	}{
		{
			name: "no issues",
			err:  &errs.ValidationError{},
			want: "workflow validation failed",
		},
		{
			name: "one issue",
			err: &errs.ValidationError{Issues: []errs.Issue{
				{Path: "steps[0].command", Message: "required field missing"},
			}},
			want: "workflow validation failed: steps[0].command: required field missing",
		},
		{
			name: "several issues",
			err: &errs.ValidationError{Issues: []errs.Issue{
				{Path: "name", Message: "must be a string"},
				{Path: "steps[1].id", Message: "duplicate step id"},
			}},
			want: "workflow validation failed with 2 issues (first: name: must be a string)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("unwraps to ErrInvalid", func(t *testing.T) {
		err := &errs.ValidationError{Issues: []errs.Issue{{Message: "bad"}}}
		if !errs.IsInvalid(err) {
			t.Error("IsInvalid(ValidationError) = false, want true")
		}
	})

	t.Run("issue without path", func(t *testing.T) {
		i := errs.Issue{Message: "document is not a mapping"}
		if got := i.String(); got != "document is not a mapping" {
			t.Errorf("String() = %q", got)
		}
	})
}

// TestConfigError verifies ConfigError formatting and unwrapping.
func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *errs.ConfigError
		want string
	}{
		{
			name: "missing variables",
			err:  &errs.ConfigError{Missing: []string{"BEDROCK_MODEL_ID", "AWS_REGION"}},
			want: "config: unresolved variables: BEDROCK_MODEL_ID, AWS_REGION",
		},
		{
			name: "with path",
			err:  &errs.ConfigError{Path: "~/.config/drover/config.toml", Err: errs.ErrInvalid},
			want: "config ~/.config/drover/config.toml: invalid",
		},
		{
			name: "bare",
			err:  &errs.ConfigError{Err: fmt.Errorf("parse error")},
			want: "config: parse error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("Unwrap returns original error", func(t *testing.T) {
		original := errs.ErrInvalid
		wrapped := &errs.ConfigError{Err: original}
		if !errors.Is(wrapped, original) {
			t.Error("Unwrap() did not return the original error for errors.Is")
		}
	})
}

// TestPolicyViolationError verifies the rendered message carries the
// dimension, limit, and observed value.
func TestPolicyViolationError(t *testing.T) {
	err := &errs.PolicyViolationError{
		StepID:    "apply-fix",
		Dimension: "max_files",
		Limit:     "2",
		Actual:    "3",
	}
	want := `policy violation in step "apply-fix": max_files exceeded (limit 2, got 3)`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// TestExecutionError verifies ExecutionError formatting.
func TestExecutionError(t *testing.T) {
	tests := []struct {
		name string
		err  *errs.ExecutionError
		want string
	}{
		{
			name: "with exit code",
			err:  &errs.ExecutionError{StepID: "build", ExitCode: 2, Err: fmt.Errorf("command failed")},
			want: `step "build" failed: command failed (exit 2)`,
		},
		{
			name: "without exit code",
			err:  &errs.ExecutionError{StepID: "review", Err: errs.ErrTimeout},
			want: `step "review" failed: timed out`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("Unwrap preserves sentinel", func(t *testing.T) {
		err := &errs.ExecutionError{StepID: "x", Err: errs.ErrTimeout}
		if !errs.IsTimeout(err) {
			t.Error("IsTimeout(ExecutionError{ErrTimeout}) = false, want true")
		}
	})
}

// TestPersistenceError verifies PersistenceError formatting.
func TestPersistenceError(t *testing.T) {
	err := &errs.PersistenceError{Op: "write", Path: "/runs/abc/run-state.json", Err: fmt.Errorf("disk full")}
	want := "run store write /runs/abc/run-state.json: disk full"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &errs.PersistenceError{Op: "load", Err: errs.ErrNotFound}
	if got := bare.Error(); got != "run store load: not found" {
		t.Errorf("Error() = %q", got)
	}
	if !errs.IsNotFound(bare) {
		t.Error("IsNotFound(PersistenceError{ErrNotFound}) = false, want true")
	}
}

// TestResumeError verifies ResumeError formatting and drift detection.
func TestResumeError(t *testing.T) {
	err := &errs.ResumeError{RunID: "20250114-review-abc123", Err: errs.ErrDrift}
	want := `cannot resume run "20250114-review-abc123": workflow definition has changed`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errs.IsDrift(err) {
		t.Error("IsDrift(ResumeError{ErrDrift}) = false, want true")
	}

	nf := &errs.ResumeError{RunID: "nope", Err: errs.ErrNotFound}
	if !errs.IsNotFound(nf) {
		t.Error("IsNotFound(ResumeError{ErrNotFound}) = false, want true")
	}
}

// TestWrap verifies the Wrap helper function.
func TestWrap(t *testing.T) {
	original := errs.ErrNotFound
	wrapped := errs.Wrap(original, "loadRunState")

	if got := wrapped.Error(); got != "loadRunState: not found" {
		t.Errorf("Error() = %q, want 'loadRunState: not found'", got)
	}

	t.Run("Unwrap returns original error", func(t *testing.T) {
		if !errors.Is(wrapped, original) {
			t.Error("Wrap() did not preserve the original error for errors.Is")
		}
	})

	t.Run("Double wrap preserves original", func(t *testing.T) {
		doubleWrapped := errs.Wrap(wrapped, "resume")
		if !errors.Is(doubleWrapped, original) {
			t.Error("Double wrap did not preserve the original error")
		}
		expected := "resume: loadRunState: not found"
		if got := doubleWrapped.Error(); got != expected {
			t.Errorf("Chained error message = %q, want %q", got, expected)
		}
	})
}

// TestAsHelpers verifies the As<TYPE>() helper functions.
func TestAsHelpers(t *testing.T) {
	t.Run("AsPolicyViolation", func(t *testing.T) {
		pv := &errs.PolicyViolationError{StepID: "agent-1", Dimension: "timeout_seconds", Limit: "30s", Actual: "31s"}
		wrapped := errs.Wrap(pv, "runStep")
		result, ok := errs.AsPolicyViolation(wrapped)
		if !ok {
			t.Fatal("AsPolicyViolation(wrapped) = false, want true")
		}
		if result.Dimension != "timeout_seconds" {
			t.Errorf("wrong Dimension: got %q", result.Dimension)
		}
	})

	t.Run("AsPolicyViolation with wrong type", func(t *testing.T) {
		if _, ok := errs.AsPolicyViolation(errs.ErrInvalid); ok {
			t.Error("AsPolicyViolation(ErrInvalid) = true, want false")
		}
	})

	t.Run("AsValidationError", func(t *testing.T) {
		ve := &errs.ValidationError{Issues: []errs.Issue{{Path: "model", Message: "required"}}}
		result, ok := errs.AsValidationError(errs.Wrap(ve, "validate"))
		if !ok {
			t.Fatal("AsValidationError(wrapped) = false, want true")
		}
		if len(result.Issues) != 1 {
			t.Errorf("wrong issue count: got %d", len(result.Issues))
		}
	})

	t.Run("AsResumeError", func(t *testing.T) {
		re := &errs.ResumeError{RunID: "r1", Err: errs.ErrNotFound}
		result, ok := errs.AsResumeError(errs.Wrap(re, "resume"))
		if !ok {
			t.Fatal("AsResumeError(wrapped) = false, want true")
		}
		if result.RunID != "r1" {
			t.Errorf("wrong RunID: got %q", result.RunID)
		}
	})

	t.Run("AsExecutionError", func(t *testing.T) {
		ee := &errs.ExecutionError{StepID: "build", ExitCode: 1, Err: fmt.Errorf("boom")}
		result, ok := errs.AsExecutionError(ee)
		if !ok {
			t.Fatal("AsExecutionError(valid) = false, want true")
		}
		if result.ExitCode != 1 {
			t.Errorf("wrong ExitCode: got %d", result.ExitCode)
		}
	})

	t.Run("AsPersistenceError", func(t *testing.T) {
		pe := &errs.PersistenceError{Op: "mkdir", Path: "/tmp/x", Err: fmt.Errorf("denied")}
		if _, ok := errs.AsPersistenceError(pe); !ok {
			t.Fatal("AsPersistenceError(valid) = false, want true")
		}
	})

	t.Run("AsConfigError", func(t *testing.T) {
		ce := &errs.ConfigError{Missing: []string{"MODEL"}}
		if _, ok := errs.AsConfigError(errs.Wrap(ce, "resolve")); !ok {
			t.Fatal("AsConfigError(wrapped) = false, want true")
		}
	})
}
